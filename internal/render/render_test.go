package render

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/video"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrames struct {
	fail map[int]bool
}

func (f fakeFrames) ReadAt(frame int) (image.Image, error) {
	if f.fail[frame] {
		return nil, &types.FrameReadError{Frame: frame, Err: errors.New("seek failed")}
	}
	return image.NewRGBA(image.Rect(0, 0, 320, 240)), nil
}

// fileSink records frame sizes and creates path on the first frame, like the
// ffmpeg writer does.
type fileSink struct {
	path     string
	sizes    []image.Point
	failAt   int
	closeErr error
}

func (s *fileSink) WriteFrame(img image.Image) error {
	if s.failAt > 0 && len(s.sizes)+1 == s.failAt {
		return errors.New("broken pipe")
	}
	if len(s.sizes) == 0 {
		if err := os.WriteFile(s.path, []byte("partial"), 0644); err != nil {
			return err
		}
	}
	s.sizes = append(s.sizes, img.Bounds().Size())
	return nil
}

func (s *fileSink) Close() error { return s.closeErr }

type harness struct {
	dir      string
	sinks    []*fileSink
	muxCalls [][2]float64
	muxErr   error
	failAt   int
	closeErr error
}

func (h *harness) renderer(t *testing.T, audio bool, info video.Info) *Renderer {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = h.dir
	cfg.Render.Audio = audio

	return New(zerolog.Nop(), cfg, info,
		WithSinkFactory(func(ctx context.Context, path string, w, hh int) video.FrameSink {
			s := &fileSink{path: path, failAt: h.failAt, closeErr: h.closeErr}
			h.sinks = append(h.sinks, s)
			return s
		}),
		WithMuxer(func(ctx context.Context, videoPath, outputPath string, start, end float64) error {
			h.muxCalls = append(h.muxCalls, [2]float64{start, end})
			if h.muxErr != nil {
				return h.muxErr
			}
			return os.WriteFile(outputPath, []byte("muxed"), 0644)
		}),
	)
}

func segmentOf(first, n int) types.Segment {
	seg := make(types.Segment, n)
	for i := range seg {
		seg[i] = types.MatchedFrame{Frame: first + i, Box: types.FaceBox{X: 10 + i, Y: 20, Width: 40 + i%2, Height: 50}}
	}
	return seg
}

var silentSource = video.Info{Path: "in.mp4", FPS: 30, Width: 320, Height: 240, Duration: 10 * time.Second}

func TestCropSize(t *testing.T) {
	seg := types.Segment{
		{Box: types.FaceBox{Width: 10, Height: 21}},
		{Box: types.FaceBox{Width: 11, Height: 20}},
	}
	w, h := CropSize(seg)
	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}

func TestRenderDropsUnreadableFrames(t *testing.T) {
	h := &harness{dir: t.TempDir()}
	r := h.renderer(t, false, silentSource)

	seg := segmentOf(100, 6)
	res, err := r.Render(context.Background(), fakeFrames{fail: map[int]bool{102: true}}, seg, 1)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(h.dir, "segment_1.mp4"), res.Path)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, h.sinks, 1)
	require.Len(t, h.sinks[0].sizes, 5)
	for _, sz := range h.sinks[0].sizes {
		assert.Equal(t, image.Pt(40, 50), sz)
	}
	assert.FileExists(t, res.Path)
}

func TestRenderNoReadableFramesLeavesNothing(t *testing.T) {
	h := &harness{dir: t.TempDir()}
	r := h.renderer(t, false, silentSource)

	seg := segmentOf(0, 2)
	_, err := r.Render(context.Background(), fakeFrames{fail: map[int]bool{0: true, 1: true}}, seg, 3)

	var ioErr *types.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.NoFileExists(t, filepath.Join(h.dir, "segment_3.mp4"))
}

func TestRenderEncoderFailureRemovesPartialOutput(t *testing.T) {
	h := &harness{dir: t.TempDir(), failAt: 3, closeErr: errors.New("encoder failed: Unknown encoder 'libx265'")}
	r := h.renderer(t, false, silentSource)

	_, err := r.Render(context.Background(), fakeFrames{}, segmentOf(0, 5), 2)
	var ioErr *types.IOError
	require.True(t, errors.As(err, &ioErr))
	// the pipe error alone says nothing; the encoder's own log comes from Close
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Contains(t, err.Error(), "Unknown encoder")
	assert.NoFileExists(t, filepath.Join(h.dir, "segment_2.mp4"))
}

func TestRenderWithAudio(t *testing.T) {
	src := silentSource
	src.HasAudio = true
	src.Duration = 2 * time.Second

	t.Run("end clamped to source duration", func(t *testing.T) {
		h := &harness{dir: t.TempDir()}
		r := h.renderer(t, true, src)

		// frames 30..89 end at 89/30 s, past the 2s source duration
		res, err := r.Render(context.Background(), fakeFrames{}, segmentOf(30, 60), 1)
		require.NoError(t, err)
		assert.True(t, res.Audio)

		require.Len(t, h.muxCalls, 1)
		assert.Equal(t, 1.0, h.muxCalls[0][0])
		assert.Equal(t, 2.0, h.muxCalls[0][1])

		assert.FileExists(t, res.Path)
		assert.NoFileExists(t, h.sinks[0].path, "temp visual file must be removed")
		assert.NotEqual(t, res.Path, h.sinks[0].path)
	})

	t.Run("single frame writes video only", func(t *testing.T) {
		h := &harness{dir: t.TempDir()}
		r := h.renderer(t, true, src)

		res, err := r.Render(context.Background(), fakeFrames{}, segmentOf(15, 1), 1)
		require.NoError(t, err)
		assert.False(t, res.Audio)
		assert.Equal(t, 1, res.Frames)
		assert.Empty(t, h.muxCalls)
		assert.Equal(t, res.Path, h.sinks[0].path)
		assert.FileExists(t, res.Path)
	})

	t.Run("segment after audio ends writes video only", func(t *testing.T) {
		h := &harness{dir: t.TempDir()}
		r := h.renderer(t, true, src)

		// starts at 3s, the source audio stops at 2s
		res, err := r.Render(context.Background(), fakeFrames{}, segmentOf(90, 10), 4)
		require.NoError(t, err)
		assert.False(t, res.Audio)
		assert.Empty(t, h.muxCalls)
		assert.FileExists(t, filepath.Join(h.dir, "segment_4.mp4"))
	})
}

func TestRenderAudioFallsBackWithoutAudioStream(t *testing.T) {
	h := &harness{dir: t.TempDir()}
	r := h.renderer(t, true, silentSource)

	res, err := r.Render(context.Background(), fakeFrames{}, segmentOf(0, 3), 1)
	require.NoError(t, err)
	assert.False(t, res.Audio)
	assert.Empty(t, h.muxCalls)
	assert.Equal(t, res.Path, h.sinks[0].path)
}

func TestRenderMuxFailureKeepsTempVisual(t *testing.T) {
	h := &harness{dir: t.TempDir(), muxErr: errors.New("no audio decoder")}
	src := silentSource
	src.HasAudio = true
	r := h.renderer(t, true, src)

	_, err := r.Render(context.Background(), fakeFrames{}, segmentOf(0, 3), 1)
	var ioErr *types.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.FileExists(t, h.sinks[0].path)
	assert.NoFileExists(t, filepath.Join(h.dir, "segment_1.mp4"))
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	meta := types.RunMetadata{
		FileName: "input.mp4",
		Segments: []types.SegmentMetadata{
			types.NewSegmentMetadata(types.Segment{
				{Frame: 30, Box: types.FaceBox{X: 1, Y: 2, Width: 3, Height: 4}},
				{Frame: 31, Box: types.FaceBox{X: 5, Y: 6, Width: 7, Height: 8}},
			}, 30),
		},
	}
	require.NoError(t, WriteMetadata(path, meta))

	loaded, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, meta, *loaded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"face_coordinates": [`)
	assert.Contains(t, string(raw), `30,`)
}

func TestMetadataEmptySegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	require.NoError(t, WriteMetadata(path, types.RunMetadata{FileName: "input.mp4"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"file_name":"input.mp4","segments":[]}`, string(raw))
}
