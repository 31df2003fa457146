package types

import (
	"encoding/json"
	"fmt"
	"image"
)

// FaceBox is an axis-aligned face region in pixel coordinates (top-left origin).
// It is not guaranteed to lie inside the frame; consumers clamp.
type FaceBox struct {
	X      int `json:"x" msgpack:"x"`
	Y      int `json:"y" msgpack:"y"`
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`
}

// Rect returns the box as an image.Rectangle.
func (b FaceBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Clamp intersects the box with bounds. The result may be empty.
func (b FaceBox) Clamp(bounds image.Rectangle) image.Rectangle {
	return b.Rect().Intersect(bounds)
}

// BoxFromRect converts an image.Rectangle into a FaceBox.
func BoxFromRect(r image.Rectangle) FaceBox {
	return FaceBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// FrameDetectionRecord holds every face the detector reported for one frame.
type FrameDetectionRecord struct {
	Frame int       `json:"frame" msgpack:"frame"`
	Faces []FaceBox `json:"faces" msgpack:"faces"`
}

// MarshalJSON keeps "faces" an array even when nothing was detected.
func (r FrameDetectionRecord) MarshalJSON() ([]byte, error) {
	type alias FrameDetectionRecord
	if r.Faces == nil {
		r.Faces = []FaceBox{}
	}
	return json.Marshal(alias(r))
}

// Embedding is a fixed-length identity vector.
type Embedding []float64

// MatchedFrame is a frame whose face matched the reference identity.
type MatchedFrame struct {
	Frame int
	Box   FaceBox
}

// MarshalJSON encodes the frame as [frame_index, [x, y, w, h]].
func (m MatchedFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{m.Frame, [4]int{m.Box.X, m.Box.Y, m.Box.Width, m.Box.Height}})
}

// UnmarshalJSON decodes the [frame_index, [x, y, w, h]] form.
func (m *MatchedFrame) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("face coordinate entry must have 2 elements, got %d", len(raw))
	}
	var box [4]int
	if err := json.Unmarshal(raw[0], &m.Frame); err != nil {
		return fmt.Errorf("bad frame index: %w", err)
	}
	if err := json.Unmarshal(raw[1], &box); err != nil {
		return fmt.Errorf("bad box for frame %d: %w", m.Frame, err)
	}
	m.Box = FaceBox{X: box[0], Y: box[1], Width: box[2], Height: box[3]}
	return nil
}

// Segment is a non-empty run of matched frames with consecutive indices.
type Segment []MatchedFrame

// First returns the first frame index of the segment.
func (s Segment) First() int { return s[0].Frame }

// Last returns the last frame index of the segment.
func (s Segment) Last() int { return s[len(s)-1].Frame }

// Span returns the segment's time bounds in seconds.
func (s Segment) Span(fps float64) (start, end float64) {
	if fps <= 0 || len(s) == 0 {
		return 0, 0
	}
	return float64(s.First()) / fps, float64(s.Last()) / fps
}

// SegmentMetadata describes one rendered segment.
type SegmentMetadata struct {
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	FaceCoordinates Segment `json:"face_coordinates"`
}

// RunMetadata is the per-run metadata file.
type RunMetadata struct {
	FileName string            `json:"file_name"`
	Segments []SegmentMetadata `json:"segments"`
}

// NewSegmentMetadata computes the time bounds for seg at the given frame rate.
func NewSegmentMetadata(seg Segment, fps float64) SegmentMetadata {
	start, end := seg.Span(fps)
	return SegmentMetadata{StartTime: start, EndTime: end, FaceCoordinates: seg}
}
