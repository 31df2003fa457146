package detector

import (
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// Pigo is a pure-Go pixel intensity cascade. It needs no OpenCV cascade file,
// only the facefinder binary.
type Pigo struct {
	classifier *pigo.Pigo
	shift      float64
	scale      float64
	iou        float64
	minQuality float32
	minSize    int
}

func NewPigo(cfg config.DetectorConfig) (*Pigo, error) {
	data, err := os.ReadFile(cfg.PigoCascadePath)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: cfg.PigoCascadePath, Err: err}
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: cfg.PigoCascadePath, Err: fmt.Errorf("failed to unpack cascade: %w", err)}
	}

	minSize := cfg.MinSize
	if minSize <= 0 {
		minSize = 20
	}
	scale := cfg.ScaleFactor
	if scale <= 1.0 {
		scale = 1.1
	}
	return &Pigo{
		classifier: classifier,
		shift:      cfg.ShiftFactor,
		scale:      scale,
		iou:        cfg.IoUThreshold,
		minQuality: float32(cfg.MinQuality),
		minSize:    minSize,
	}, nil
}

func (p *Pigo) Detect(img image.Image) ([]types.FaceBox, error) {
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     p.minSize,
		MaxSize:     min(cols, rows),
		ShiftFactor: p.shift,
		ScaleFactor: p.scale,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.iou)

	origin := img.Bounds().Min
	boxes := make([]types.FaceBox, 0, len(dets))
	for _, d := range dets {
		if d.Q < p.minQuality {
			continue
		}
		box, ok := pigoBox(d)
		if !ok {
			continue
		}
		box.X += origin.X
		box.Y += origin.Y
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// pigoBox turns a center/scale detection into a top-left square box.
func pigoBox(d pigo.Detection) (types.FaceBox, bool) {
	half := float64(d.Scale) / 2
	return boxFromFloat(float64(d.Col)-half, float64(d.Row)-half, float64(d.Scale), float64(d.Scale))
}

func (p *Pigo) Close() error { return nil }
