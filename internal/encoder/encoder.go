// Package encoder turns face crops into identity embeddings and compares them.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"

	_ "image/gif"
	_ "image/png"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNoFace is returned when the recognizer finds no face in the crop.
var ErrNoFace = errors.New("no face found")

// Encoder produces an embedding for a face crop.
type Encoder interface {
	Encode(crop image.Image) (types.Embedding, error)
}

// recognizer is the part of *face.Recognizer that Dlib uses.
type recognizer interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// Dlib encodes through go-face. The recognizer runs its own detector on the
// crop and describes the first face it finds, so a crop or reference photo
// holding several people still yields one embedding.
type Dlib struct {
	rec     recognizer
	quality int
}

// NewDlib loads the dlib models from cfg.ModelsDir. The directory must hold
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat.
func NewDlib(cfg config.EncoderConfig) (*Dlib, error) {
	if cfg.ModelsDir == "" {
		return nil, &types.ConfigurationError{Field: "models_dir", Value: "", Reason: "models directory is required"}
	}
	if _, err := os.Stat(cfg.ModelsDir); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: cfg.ModelsDir, Err: err}
	}

	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: cfg.ModelsDir, Err: fmt.Errorf("failed to initialize face recognizer: %w", err)}
	}
	return &Dlib{rec: rec, quality: 95}, nil
}

func (d *Dlib) Encode(crop image.Image) (types.Embedding, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, ErrNoFace
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	faces, err := d.rec.Recognize(buf.Bytes())
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	f := faces[0]
	emb := make(types.Embedding, len(f.Descriptor))
	for i, v := range f.Descriptor {
		emb[i] = float64(v)
	}
	return emb, nil
}

// Close releases resources used by the recognizer
func (d *Dlib) Close() {
	if d.rec != nil {
		d.rec.Close()
	}
}

// LoadImage decodes jpeg, png, gif, bmp or webp from path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: fmt.Errorf("failed to decode image: %w", err)}
	}
	return img, nil
}

// LoadReference builds the reference embedding from the whole image at path.
// An image with no recognizable face is unusable as a reference.
func LoadReference(enc Encoder, path string) (types.Embedding, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	emb, err := enc.Encode(img)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: fmt.Errorf("reference image has no usable face: %w", err)}
	}
	return emb, nil
}

// Distance is the Euclidean distance between two embeddings. Lower means more
// similar. Embeddings of different length are infinitely far apart.
func Distance(a, b types.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
