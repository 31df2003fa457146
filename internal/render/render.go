// Package render writes one cropped clip per segment, optionally carrying the
// matching slice of the source audio.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/andresmejia3/facereel/internal/video"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// FrameReader reads a single frame by index.
type FrameReader interface {
	ReadAt(frame int) (image.Image, error)
}

// SinkFactory opens a frame sink that encodes width x height frames to path.
type SinkFactory func(ctx context.Context, path string, width, height int) video.FrameSink

// Muxer combines the visual stream at videoPath with the source audio over
// [start, end] seconds and writes outputPath.
type Muxer func(ctx context.Context, videoPath, outputPath string, start, end float64) error

// Result describes one rendered segment.
type Result struct {
	Path    string
	Frames  int
	Dropped int
	Audio   bool
}

type Renderer struct {
	log       zerolog.Logger
	cfg       config.RenderConfig
	outputDir string
	source    video.Info
	newSink   SinkFactory
	mux       Muxer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSinkFactory replaces the ffmpeg encoder.
func WithSinkFactory(f SinkFactory) Option {
	return func(r *Renderer) { r.newSink = f }
}

// WithMuxer replaces the ffmpeg audio mux step.
func WithMuxer(m Muxer) Option {
	return func(r *Renderer) { r.mux = m }
}

// New returns a Renderer writing into outputDir. source describes the video
// the segments were matched against.
func New(log zerolog.Logger, cfg *config.Config, source video.Info, opts ...Option) *Renderer {
	r := &Renderer{
		log:       log,
		cfg:       cfg.Render,
		outputDir: cfg.OutputDir,
		source:    source,
	}

	ffmpegPath := cfg.FFmpeg.BinaryPath
	process := cfg.FFmpeg.Process()
	r.newSink = func(ctx context.Context, path string, width, height int) video.FrameSink {
		return video.NewWriter(ctx, ffmpegPath, path, utils.EncodeOptions{
			ProcessOptions: process,
			FPS:            source.FPS,
			Width:          width,
			Height:         height,
			Codec:          cfg.Render.VideoCodec,
			CRF:            cfg.Render.CRF,
			Preset:         cfg.Render.Preset,
		})
	}
	r.mux = func(ctx context.Context, videoPath, outputPath string, start, end float64) error {
		cmd := utils.NewSafeCommand(ctx, ffmpegPath,
			utils.FFmpegMuxArgs(videoPath, source.Path, outputPath, start, end, cfg.Render.AudioCodec, process)...)
		return cmd.Wrap(cmd.Run())
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OutputPath is where segment ordinal (1-based) is written.
func (r *Renderer) OutputPath(ordinal int) string {
	return filepath.Join(r.outputDir, fmt.Sprintf("segment_%d.mp4", ordinal))
}

// CropSize is the floor of the mean box width and height of seg.
func CropSize(seg types.Segment) (width, height int) {
	if len(seg) == 0 {
		return 0, 0
	}
	var sw, sh int
	for _, m := range seg {
		sw += m.Box.Width
		sh += m.Box.Height
	}
	return sw / len(seg), sh / len(seg)
}

// Render crops every frame of seg to its box, scales it to the segment's
// fixed size and encodes the result. Frames that cannot be read are dropped.
// When nothing usable is produced, no file is left behind and an IOError is
// returned.
func (r *Renderer) Render(ctx context.Context, frames FrameReader, seg types.Segment, ordinal int) (*Result, error) {
	out := r.OutputPath(ordinal)
	if len(seg) == 0 {
		return nil, &types.IOError{Path: out, Err: errors.New("empty segment")}
	}

	width, height := CropSize(seg)
	if width <= 0 || height <= 0 {
		return nil, &types.IOError{Path: out, Err: fmt.Errorf("degenerate crop size %dx%d", width, height)}
	}

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, &types.IOError{Path: out, Err: err}
	}

	withAudio := r.cfg.Audio && r.source.HasAudio
	if r.cfg.Audio && !r.source.HasAudio {
		r.log.Info().Int("segment", ordinal).Msg("Source has no audio stream, writing video only")
	}
	// A single frame, or a segment past the end of the audio, has no slice to mux
	start, end := r.audioSpan(seg)
	if withAudio && end <= start {
		r.log.Info().Int("segment", ordinal).Float64("start", start).Float64("end", end).Msg("Empty audio span, writing video only")
		withAudio = false
	}

	visual := out
	if withAudio {
		visual = filepath.Join(r.outputDir, fmt.Sprintf(".segment_%d.video.mp4", ordinal))
	}

	res := &Result{Path: out, Audio: withAudio}
	sink := r.newSink(ctx, visual, width, height)
	size := image.Rect(0, 0, width, height)

	for _, m := range seg {
		if err := ctx.Err(); err != nil {
			_ = sink.Close()
			removeFiles(visual, out)
			return nil, err
		}

		img, err := frames.ReadAt(m.Frame)
		if err != nil {
			r.log.Warn().Err(err).Int("frame", m.Frame).Msg("Dropping unreadable frame")
			res.Dropped++
			continue
		}

		rect := m.Box.Clamp(img.Bounds())
		if rect.Empty() {
			r.log.Warn().Int("frame", m.Frame).Msg("Dropping frame, box lies outside the frame")
			res.Dropped++
			continue
		}

		crop := imaging.Crop(img, rect)
		if crop.Bounds().Size() != size.Size() {
			crop = imaging.Resize(crop, width, height, imaging.Lanczos)
		}
		if err := sink.WriteFrame(crop); err != nil {
			err = errors.Join(err, sink.Close())
			removeFiles(visual, out)
			return nil, &types.IOError{Path: out, Err: err}
		}
		res.Frames++
	}

	if err := sink.Close(); err != nil {
		removeFiles(visual, out)
		return nil, &types.IOError{Path: out, Err: err}
	}
	if res.Frames == 0 {
		removeFiles(visual, out)
		return nil, &types.IOError{Path: out, Err: errors.New("no frame of the segment could be read")}
	}

	if withAudio {
		if err := r.mux(ctx, visual, out, start, end); err != nil {
			// the visual-only temp file is kept for inspection
			removeFiles(out)
			return nil, &types.IOError{Path: out, Err: fmt.Errorf("audio mux failed, video-only stream kept at %s: %w", visual, err)}
		}
		removeFiles(visual)
	}

	r.log.Debug().Str("path", out).Int("frames", res.Frames).Int("dropped", res.Dropped).Msg("Segment rendered")
	return res, nil
}

// audioSpan returns the segment time bounds with the end clamped to the
// source duration.
func (r *Renderer) audioSpan(seg types.Segment) (start, end float64) {
	start, end = seg.Span(r.source.FPS)
	if d := r.source.Duration.Seconds(); d > 0 {
		end = math.Min(end, d)
	}
	return start, end
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
