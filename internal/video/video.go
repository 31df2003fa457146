// Package video reads decoded frames from a video file, either sequentially
// (detection pass) or by frame index (matching and rendering passes).
package video

import (
	"image"
	"time"
)

// Info describes the primary video stream of a file.
type Info struct {
	Path       string
	FPS        float64
	Width      int
	Height     int
	FrameCount int // 0 when unknown
	Duration   time.Duration
	HasAudio   bool
}

// Bounds returns the frame rectangle.
func (i Info) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}

// Source yields frames in order starting at index 0. Next returns io.EOF once
// the source is exhausted. A *types.FrameReadError means that one frame could
// not be decoded and the cursor has moved past it.
type Source interface {
	Info() Info
	Next() (int, image.Image, error)
	Close() error
}

// Seeker is a Source that can also read an arbitrary frame. It holds a single
// cursor and must not be shared between goroutines.
type Seeker interface {
	Source
	ReadAt(frame int) (image.Image, error)
}
