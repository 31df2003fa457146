package video

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/andresmejia3/facereel/internal/types"
	"gocv.io/x/gocv"
)

// Capture reads frames through OpenCV. It supports seeking, so it serves
// both the detection pass and the per-segment re-reads.
type Capture struct {
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	info  Info
	index int
}

// OpenCapture opens path. Nothing is read until Next or ReadAt is called.
func OpenCapture(path string) (*Capture, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &types.ResourceUnavailableError{Resource: path, Err: fmt.Errorf("no decoder could open the file")}
	}

	info := Info{
		Path:       path,
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.FPS > 0 && info.FrameCount > 0 {
		info.Duration = seconds(float64(info.FrameCount) / info.FPS)
	}

	return &Capture{vc: vc, mat: gocv.NewMat(), info: info}, nil
}

// Merge fills fields OpenCV cannot report (audio presence, container
// duration) from an ffprobe result.
func (c *Capture) Merge(p *Info) {
	if p == nil {
		return
	}
	c.info.HasAudio = p.HasAudio
	if p.Duration > 0 {
		c.info.Duration = p.Duration
	}
	if c.info.FPS <= 0 {
		c.info.FPS = p.FPS
	}
	if c.info.FrameCount <= 0 {
		c.info.FrameCount = p.FrameCount
	}
}

func (c *Capture) Info() Info { return c.info }

func (c *Capture) Next() (int, image.Image, error) {
	idx := c.index
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return idx, nil, io.EOF
	}
	c.index++

	img, err := c.mat.ToImage()
	if err != nil {
		return idx, nil, &types.FrameReadError{Frame: idx, Err: err}
	}
	return idx, img, nil
}

// ReadAt seeks to frame and decodes it. The sequential cursor continues from
// the frame after it.
func (c *Capture) ReadAt(frame int) (image.Image, error) {
	if frame < 0 || (c.info.FrameCount > 0 && frame >= c.info.FrameCount) {
		return nil, &types.FrameReadError{Frame: frame, Err: fmt.Errorf("out of range")}
	}
	if frame != c.index {
		c.vc.Set(gocv.VideoCapturePosFrames, float64(frame))
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, &types.FrameReadError{Frame: frame, Err: fmt.Errorf("decoder returned no frame")}
	}
	c.index = frame + 1

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, &types.FrameReadError{Frame: frame, Err: err}
	}
	return img, nil
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}
