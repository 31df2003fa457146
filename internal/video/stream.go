package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
)

const maxFrameBytes = 64 * 1024 * 1024

// Stream decodes frames with an ffmpeg MJPEG pipe. It is sequential only.
type Stream struct {
	cmd     *utils.SafeCommand
	scanner *bufio.Scanner
	info    Info
	index   int
	done    bool
}

// OpenStream starts ffmpeg on path. info is normally the result of Probe.
func OpenStream(ctx context.Context, ffmpegPath, path string, info Info, p utils.ProcessOptions) (*Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}

	cmd := utils.NewSafeCommand(ctx, ffmpegPath, utils.FFmpegDecoderArgs(path, p)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: ffmpegPath, Err: err}
	}

	s := newStream(stdout, info)
	s.cmd = cmd
	return s, nil
}

func newStream(r io.Reader, info Info) *Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxFrameBytes)
	scanner.Split(utils.SplitJpeg)
	return &Stream{scanner: scanner, info: info}
}

func (s *Stream) Info() Info { return s.info }

func (s *Stream) Next() (int, image.Image, error) {
	idx := s.index
	if s.done {
		return idx, nil, io.EOF
	}
	if !s.scanner.Scan() {
		s.done = true
		if err := s.scanner.Err(); err != nil {
			return idx, nil, fmt.Errorf("decoder stream failed at frame %d: %w", idx, err)
		}
		if err := s.wait(); err != nil {
			return idx, nil, err
		}
		return idx, nil, io.EOF
	}
	s.index++

	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return idx, nil, &types.FrameReadError{Frame: idx, Err: err}
	}
	return idx, img, nil
}

func (s *Stream) wait() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg decoder exited: %w", cmd.Wrap(err))
	}
	return nil
}

// Close stops the decoder. Any unread output is discarded.
func (s *Stream) Close() error {
	if s.cmd == nil {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	return nil
}
