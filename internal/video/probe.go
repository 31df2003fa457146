package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
)

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe runs ffprobe against path and returns the stream info.
func Probe(ctx context.Context, ffprobePath, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	if _, err := exec.LookPath(ffprobePath); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: ffprobePath, Err: err}
	}

	cmd := utils.NewSafeCommand(ctx, ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: cmd.Wrap(err)}
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

func parseProbe(data []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}
	foundVideo := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = stream.Width
			info.Height = stream.Height

			// avg_frame_rate is what the container actually delivers; r_frame_rate is the fallback
			info.FPS = ParseFrameRate(stream.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = ParseFrameRate(stream.RFrameRate)
			}
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				info.FrameCount = n
			}
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				info.Duration = seconds(d)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("no video stream found")
	}

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && info.Duration == 0 {
		info.Duration = seconds(d)
	}
	if info.FrameCount == 0 && info.FPS > 0 && info.Duration > 0 {
		info.FrameCount = int(info.Duration.Seconds() * info.FPS)
	}
	return info, nil
}

// ParseFrameRate parses an ffprobe rational like "30000/1001". It returns 0
// for anything it cannot read.
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) == 1 {
		f, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0
		}
		return f
	}
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
