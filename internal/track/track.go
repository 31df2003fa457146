// Package track runs the detection pass over a whole video and persists the
// per-frame result.
package track

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"

	"github.com/andresmejia3/facereel/internal/detector"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/video"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Builder drives a frame source and a detector over every frame.
type Builder struct {
	log      zerolog.Logger
	progress io.Writer
	annotate video.FrameSink
}

// Option configures a Builder.
type Option func(*Builder)

// WithProgress sends the progress bar to w instead of stderr.
func WithProgress(w io.Writer) Option {
	return func(b *Builder) { b.progress = w }
}

// WithAnnotation draws every detected box onto a copy of each frame and
// writes it to sink. The sink is not closed by the builder.
func WithAnnotation(sink video.FrameSink) Option {
	return func(b *Builder) { b.annotate = sink }
}

func NewBuilder(log zerolog.Logger, opts ...Option) *Builder {
	b := &Builder{log: log, progress: os.Stderr}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads src from frame 0 until it is exhausted and returns one record
// per frame. A frame that fails to decode, or that the detector errors on, is
// recorded with no faces so the sequence has no gaps.
func (b *Builder) Build(ctx context.Context, src video.Source, det detector.Detector) ([]types.FrameDetectionRecord, error) {
	info := src.Info()

	total := int64(info.FrameCount)
	if total <= 0 {
		total = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Detecting"),
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	records := make([]types.FrameDetectionRecord, 0, max(info.FrameCount, 0))

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx, img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		rec := types.FrameDetectionRecord{Frame: idx, Faces: []types.FaceBox{}}
		var ferr *types.FrameReadError
		switch {
		case errors.As(err, &ferr):
			b.log.Warn().Err(err).Int("frame", idx).Msg("Skipping unreadable frame")
		case err != nil:
			return nil, err
		default:
			faces, derr := det.Detect(img)
			if derr != nil {
				b.log.Warn().Err(derr).Int("frame", idx).Msg("Detector failed, recording no faces")
			} else if len(faces) > 0 {
				rec.Faces = faces
			}
			if b.annotate != nil {
				if werr := b.annotate.WriteFrame(annotate(img, rec.Faces)); werr != nil {
					b.log.Warn().Err(werr).Msg("Annotation disabled")
					b.annotate = nil
				}
			}
		}

		records = append(records, rec)
		_ = bar.Add(1)
	}

	b.log.Debug().Int("frames", len(records)).Msg("Detection pass complete")
	return records, nil
}

// annotate returns a copy of img with a 2px outline around each box.
func annotate(img image.Image, boxes []types.FaceBox) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	const thickness = 2
	for _, box := range boxes {
		r := box.Clamp(b)
		if r.Empty() {
			continue
		}
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
			image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
			image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(out, e.Intersect(r), &image.Uniform{C: boxColor}, image.Point{}, draw.Src)
		}
	}
	return out
}
