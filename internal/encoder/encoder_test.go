package encoder

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

type stubEncoder struct {
	emb types.Embedding
	err error
	got image.Rectangle
}

func (s *stubEncoder) Encode(crop image.Image) (types.Embedding, error) {
	s.got = crop.Bounds()
	return s.emb, s.err
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Embedding
		want float64
	}{
		{"identical", types.Embedding{1, 2, 3}, types.Embedding{1, 2, 3}, 0},
		{"3-4-5", types.Embedding{0, 0}, types.Embedding{3, 4}, 5},
		{"length mismatch", types.Embedding{1}, types.Embedding{1, 2}, math.Inf(1)},
		{"empty", types.Embedding{}, types.Embedding{}, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func writeImage(t *testing.T, name string, enc func(*os.File, image.Image) error) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	img.Set(3, 3, color.RGBA{R: 255, A: 255})

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, enc(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestLoadImageFormats(t *testing.T) {
	pngPath := writeImage(t, "ref.png", func(f *os.File, img image.Image) error { return png.Encode(f, img) })
	bmpPath := writeImage(t, "ref.bmp", func(f *os.File, img image.Image) error { return bmp.Encode(f, img) })

	for _, path := range []string{pngPath, bmpPath} {
		img, err := LoadImage(path)
		require.NoError(t, err, path)
		assert.Equal(t, image.Rect(0, 0, 16, 12), img.Bounds())
	}
}

func TestLoadImageErrors(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.jpg"))
	var rerr *types.ResourceUnavailableError
	assert.True(t, errors.As(err, &rerr))

	garbage := filepath.Join(t.TempDir(), "garbage.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0644))
	_, err = LoadImage(garbage)
	assert.True(t, errors.As(err, &rerr))
}

func TestLoadReference(t *testing.T) {
	path := writeImage(t, "ref.png", func(f *os.File, img image.Image) error { return png.Encode(f, img) })

	stub := &stubEncoder{emb: types.Embedding{0.1, 0.2}}
	emb, err := LoadReference(stub, path)
	require.NoError(t, err)
	assert.Equal(t, types.Embedding{0.1, 0.2}, emb)
	assert.Equal(t, image.Rect(0, 0, 16, 12), stub.got)

	_, err = LoadReference(&stubEncoder{err: ErrNoFace}, path)
	var rerr *types.ResourceUnavailableError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, errors.Is(err, ErrNoFace))
}

func TestNewDlibMissingModels(t *testing.T) {
	_, err := NewDlib(config.EncoderConfig{ModelsDir: filepath.Join(t.TempDir(), "models")})
	var rerr *types.ResourceUnavailableError
	assert.True(t, errors.As(err, &rerr))

	_, err = NewDlib(config.EncoderConfig{})
	var cerr *types.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

type fakeRecognizer struct {
	faces  []face.Face
	err    error
	calls  int
	closed bool
}

func (f *fakeRecognizer) Recognize(imgData []byte) ([]face.Face, error) {
	f.calls++
	return f.faces, f.err
}

func (f *fakeRecognizer) Close() { f.closed = true }

func descriptor(v float32) face.Descriptor {
	var d face.Descriptor
	for i := range d {
		d[i] = v
	}
	return d
}

func TestDlibEncodeUsesFirstFace(t *testing.T) {
	rec := &fakeRecognizer{faces: []face.Face{
		{Rectangle: image.Rect(0, 0, 8, 8), Descriptor: descriptor(0.25)},
		{Rectangle: image.Rect(8, 0, 16, 8), Descriptor: descriptor(0.75)},
	}}
	d := &Dlib{rec: rec, quality: 95}

	emb, err := d.Encode(image.NewRGBA(image.Rect(0, 0, 16, 12)))
	require.NoError(t, err)
	require.Len(t, emb, len(face.Descriptor{}))
	for _, v := range emb {
		assert.Equal(t, 0.25, v)
	}
	assert.Equal(t, 1, rec.calls)

	d.Close()
	assert.True(t, rec.closed)
}

func TestDlibEncodeNoFace(t *testing.T) {
	d := &Dlib{rec: &fakeRecognizer{}, quality: 95}
	_, err := d.Encode(image.NewRGBA(image.Rect(0, 0, 16, 12)))
	assert.ErrorIs(t, err, ErrNoFace)

	rec := &fakeRecognizer{faces: []face.Face{{Descriptor: descriptor(1)}}}
	d = &Dlib{rec: rec, quality: 95}
	_, err = d.Encode(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrNoFace)
	assert.Zero(t, rec.calls, "empty crops never reach the recognizer")
}

func TestLoadReferenceWithSeveralPeople(t *testing.T) {
	path := writeImage(t, "group.png", func(f *os.File, img image.Image) error { return png.Encode(f, img) })
	d := &Dlib{rec: &fakeRecognizer{faces: []face.Face{
		{Descriptor: descriptor(0.5)},
		{Descriptor: descriptor(0.9)},
		{Descriptor: descriptor(0.1)},
	}}, quality: 95}

	emb, err := LoadReference(d, path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, emb[0])
}
