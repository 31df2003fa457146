package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg logs)
// so a failed encode or mux still reports why it died.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// The process is killed when ctx is cancelled. It does not start the command.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Wrap annotates err with whatever the process wrote to stderr.
func (s *SafeCommand) Wrap(err error) error {
	if err == nil {
		return nil
	}
	if s.Stderr.Len() == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, bytes.TrimSpace(s.Stderr.Bytes()))
}

// ShowError prints a formatted error box and dumps the process logs if a
// SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACEREEL ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nFFMPEG LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy. It shows the error box and exits 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Video Engine (Shared by Detect & Extract) ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// ProcessOptions are the ffmpeg settings shared by every invocation.
type ProcessOptions struct {
	LogLevel string
	Threads  int
}

// baseArgs opens every ffmpeg command line.
func (p ProcessOptions) baseArgs() []string {
	level := p.LogLevel
	if level == "" {
		level = "error"
	}
	return []string{"-hide_banner", "-loglevel", level}
}

// threadArgs applies to the stream that follows it; zero leaves ffmpeg's choice.
func (p ProcessOptions) threadArgs() []string {
	if p.Threads <= 0 {
		return nil
	}
	return []string{"-threads", strconv.Itoa(p.Threads)}
}

// FFmpegDecoderArgs configures ffmpeg to write MJPEG frames to stdout.
// -vsync passthrough keeps one output image per decoded frame so indices line up.
func FFmpegDecoderArgs(inputPath string, p ProcessOptions) []string {
	args := p.baseArgs()
	args = append(args, p.threadArgs()...)
	return append(args,
		"-i", inputPath,
		"-vsync", "passthrough",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2",
		"-",
	)
}

// EncodeOptions describes the rawvideo stream fed to an encoder pipe.
type EncodeOptions struct {
	ProcessOptions
	FPS    float64
	Width  int
	Height int
	Codec  string
	CRF    int
	Preset string
}

// FFmpegEncoderArgs reads packed RGBA frames from stdin and writes an mp4.
func FFmpegEncoderArgs(outputPath string, o EncodeOptions) []string {
	codec := o.Codec
	if codec == "" {
		codec = "libx264"
	}
	args := append(o.baseArgs(),
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"-r", strconv.FormatFloat(o.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", codec,
	)
	if o.Preset != "" {
		args = append(args, "-preset", o.Preset)
	}
	if o.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(o.CRF))
	}
	args = append(args, o.threadArgs()...)
	// yuv420p needs even dimensions
	args = append(args,
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		outputPath,
	)
	return args
}

// FFmpegMuxArgs copies the rendered video and takes the source's audio over
// [start, end] seconds.
func FFmpegMuxArgs(videoPath, sourcePath, outputPath string, start, end float64, audioCodec string, p ProcessOptions) []string {
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args := append(p.baseArgs(),
		"-y",
		"-i", videoPath,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", sourcePath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", audioCodec,
	)
	args = append(args, p.threadArgs()...)
	return append(args, "-shortest", outputPath)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
