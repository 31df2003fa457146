package detector

import (
	"fmt"
	"image"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
	"gocv.io/x/gocv"
)

// YuNet wraps OpenCV's FaceDetectorYN. It runs on the color frame and has no
// scale parameter; the score threshold does the filtering.
type YuNet struct {
	net   gocv.FaceDetectorYN
	size  image.Point
	faces gocv.Mat
}

func NewYuNet(cfg config.DetectorConfig) (*YuNet, error) {
	if err := requireFile(cfg.ModelPath); err != nil {
		return nil, err
	}
	// input size is reset on the first frame
	size := image.Pt(320, 320)
	net := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath, "", size,
		float32(cfg.ScoreThreshold), float32(cfg.NMSThreshold), cfg.TopK,
		int(gocv.NetBackendDefault), int(gocv.NetTargetCPU),
	)
	return &YuNet{net: net, size: size, faces: gocv.NewMat()}, nil
}

func (y *YuNet) Detect(img image.Image) ([]types.FaceBox, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	if size := image.Pt(mat.Cols(), mat.Rows()); size != y.size {
		y.net.SetInputSize(size)
		y.size = size
	}

	y.net.Detect(mat, &y.faces)

	origin := img.Bounds().Min
	boxes := make([]types.FaceBox, 0, y.faces.Rows())
	for r := 0; r < y.faces.Rows(); r++ {
		// columns 0-3 are x, y, w, h; landmarks and score follow
		box, ok := boxFromFloat(
			float64(y.faces.GetFloatAt(r, 0)),
			float64(y.faces.GetFloatAt(r, 1)),
			float64(y.faces.GetFloatAt(r, 2)),
			float64(y.faces.GetFloatAt(r, 3)),
		)
		if !ok {
			continue
		}
		box.X += origin.X
		box.Y += origin.Y
		boxes = append(boxes, box)
	}
	return boxes, nil
}

func (y *YuNet) Close() error {
	y.faces.Close()
	y.net.Close()
	return nil
}
