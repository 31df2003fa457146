package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/encoder"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// FrameReader reads a single frame by index.
type FrameReader interface {
	ReadAt(frame int) (image.Image, error)
}

// Options controls matching and smoothing.
type Options struct {
	Threshold float64
	Policy    string
	Window    int
	Mode      string
	// DebugDir, when set, receives every face crop as frame_<i>_face_<j>.png.
	DebugDir string
	Progress io.Writer
}

// OptionsFromConfig maps matcher config onto Options. Debug crops land in
// <outputDir>/debug.
func OptionsFromConfig(cfg config.MatcherConfig, outputDir string) Options {
	opts := Options{
		Threshold: cfg.Threshold,
		Policy:    cfg.Policy,
		Window:    cfg.SmoothingWindow,
		Mode:      cfg.SmoothingMode,
		Progress:  os.Stderr,
	}
	if cfg.Debug {
		opts.DebugDir = filepath.Join(outputDir, "debug")
	}
	return opts
}

// Matcher compares tracked faces against one reference embedding.
type Matcher struct {
	log       zerolog.Logger
	enc       encoder.Encoder
	reference types.Embedding
	opts      Options
}

func NewMatcher(log zerolog.Logger, enc encoder.Encoder, reference types.Embedding, opts Options) *Matcher {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Matcher{log: log, enc: enc, reference: reference, opts: opts}
}

// Match returns one MatchedFrame per record that has a face under the
// threshold, in track order. Unreadable frames and faces without an embedding
// never match.
func (m *Matcher) Match(ctx context.Context, records []types.FrameDetectionRecord, frames FrameReader) ([]types.MatchedFrame, error) {
	if m.opts.DebugDir != "" {
		if err := os.MkdirAll(m.opts.DebugDir, 0755); err != nil {
			return nil, &types.IOError{Path: m.opts.DebugDir, Err: err}
		}
	}

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Matching"),
		progressbar.OptionSetWriter(m.opts.Progress),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	var matched []types.MatchedFrame
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = bar.Add(1)

		if len(rec.Faces) == 0 {
			continue
		}

		img, err := frames.ReadAt(rec.Frame)
		if err != nil {
			var ferr *types.FrameReadError
			if !errors.As(err, &ferr) {
				err = &types.FrameReadError{Frame: rec.Frame, Err: err}
			}
			m.log.Warn().Err(err).Int("frame", rec.Frame).Msg("Failed to read frame")
			continue
		}

		if i := m.pick(rec, img); i >= 0 {
			matched = append(matched, types.MatchedFrame{Frame: rec.Frame, Box: rec.Faces[i]})
		}
	}
	return matched, nil
}

// pick applies the match policy to one frame and returns the chosen face
// index, or -1.
func (m *Matcher) pick(rec types.FrameDetectionRecord, img image.Image) int {
	best, bestDist := -1, math.Inf(1)
	for i, box := range rec.Faces {
		dist, err := m.distance(rec.Frame, i, box, img)
		if err != nil {
			m.log.Debug().Err(err).Msg("Face treated as non-matching")
			continue
		}
		if dist >= m.opts.Threshold {
			continue
		}
		if m.opts.Policy != config.PolicyBest {
			return i
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func (m *Matcher) distance(frame, face int, box types.FaceBox, img image.Image) (float64, error) {
	r := box.Clamp(img.Bounds())
	if r.Empty() {
		return 0, &types.EncodingError{Frame: frame, Face: face, Err: fmt.Errorf("box %v lies outside the frame", box)}
	}
	crop := imaging.Crop(img, r)

	if m.opts.DebugDir != "" {
		path := filepath.Join(m.opts.DebugDir, fmt.Sprintf("frame_%d_face_%d.png", frame, face))
		if err := imaging.Save(crop, path); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("Failed to save debug crop")
		}
	}

	emb, err := m.enc.Encode(crop)
	if err != nil {
		return 0, &types.EncodingError{Frame: frame, Face: face, Err: err}
	}
	return encoder.Distance(emb, m.reference), nil
}

// MatchAndSegment matches the track against the reference, groups the
// matches into segments and smooths each one. Segments come back ordered by
// their first frame.
func MatchAndSegment(ctx context.Context, log zerolog.Logger, records []types.FrameDetectionRecord, frames FrameReader, enc encoder.Encoder, reference types.Embedding, opts Options) ([]types.Segment, error) {
	matched, err := NewMatcher(log, enc, reference, opts).Match(ctx, records, frames)
	if err != nil {
		return nil, err
	}

	segments := Group(matched)
	for _, seg := range segments {
		Smooth(seg, opts.Window, opts.Mode)
	}
	log.Info().Int("matched_frames", len(matched)).Int("segments", len(segments)).Msg("Segmentation complete")
	return segments, nil
}
