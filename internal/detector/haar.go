package detector

import (
	"fmt"
	"image"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"gocv.io/x/gocv"
)

// Haar is the classical sliding-window cascade over a grayscale frame.
type Haar struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	gray         gocv.Mat
}

func NewHaar(cfg config.DetectorConfig) (*Haar, error) {
	if err := requireFile(cfg.CascadePath); err != nil {
		return nil, err
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, &types.ResourceUnavailableError{Resource: cfg.CascadePath, Err: fmt.Errorf("not a cascade classifier")}
	}
	return &Haar{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinSize, cfg.MinSize),
		gray:         gocv.NewMat(),
	}, nil
}

func (h *Haar) Detect(img image.Image) ([]types.FaceBox, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gocv.CvtColor(mat, &h.gray, gocv.ColorBGRToGray)
	rects := h.classifier.DetectMultiScaleWithParams(h.gray, h.scaleFactor, h.minNeighbors, 0, h.minSize, image.Pt(0, 0))

	origin := img.Bounds().Min
	boxes := make([]types.FaceBox, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, types.BoxFromRect(r.Add(origin)))
	}
	return boxes, nil
}

func (h *Haar) Close() error {
	h.gray.Close()
	return h.classifier.Close()
}
