// Package detector finds face regions in a single frame. Backends are chosen
// once per run and all report boxes as top-left origin plus extent.
package detector

import (
	"image"
	"math"
	"os"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
)

// Detector returns every face it finds in img, in its own reporting order.
type Detector interface {
	Detect(img image.Image) ([]types.FaceBox, error)
	Close() error
}

// New builds the backend named by cfg.Kind. An unknown name is a
// ConfigurationError and no model is loaded.
func New(cfg config.DetectorConfig) (Detector, error) {
	switch cfg.Kind {
	case config.DetectorHaar:
		return NewHaar(cfg)
	case config.DetectorYuNet:
		return NewYuNet(cfg)
	case config.DetectorPigo:
		return NewPigo(cfg)
	default:
		return nil, &types.ConfigurationError{Field: "detector", Value: cfg.Kind, Reason: "must be one of haar, yunet, pigo"}
	}
}

func requireFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	return nil
}

// boxFromFloat converts a floating point region into a FaceBox with a
// non-negative origin. ok is false when nothing positive remains.
func boxFromFloat(x, y, w, h float64) (box types.FaceBox, ok bool) {
	x0, y0 := math.Floor(x), math.Floor(y)
	x1, y1 := math.Floor(x+w), math.Floor(y+h)
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 <= x0 || y1 <= y0 {
		return types.FaceBox{}, false
	}
	return types.FaceBox{X: int(x0), Y: int(y0), Width: int(x1 - x0), Height: int(y1 - y0)}, true
}
