// Package segment decides which tracked faces belong to the reference identity
// and turns the matching frames into smoothed, contiguous segments.
package segment

import (
	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/types"
)

// Group splits matched frames into maximal runs of consecutive frame indices.
// Input must be in increasing frame order.
func Group(matched []types.MatchedFrame) []types.Segment {
	var segments []types.Segment
	var current types.Segment

	for i, m := range matched {
		if i > 0 && m.Frame != matched[i-1].Frame+1 {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, m)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}

// Smooth applies a centered moving average of width window to each box
// coordinate of seg, in place. Output i averages inputs
// [i-window/2, i+window-1-window/2], the alignment of a "same" convolution.
//
// In renormalize mode each sum is divided by the number of samples that fall
// inside the segment, so a constant track is left unchanged. In zero-pad mode
// it is divided by window, which pulls edge boxes towards zero exactly like a
// convolution with a 1/window kernel. Results are truncated to integers.
// A window of 1 or less is a no-op.
func Smooth(seg types.Segment, window int, mode string) {
	n := len(seg)
	if window <= 1 || n == 0 {
		return
	}

	src := make([][4]int, n)
	for i, m := range seg {
		src[i] = [4]int{m.Box.X, m.Box.Y, m.Box.Width, m.Box.Height}
	}

	before := window / 2
	after := window - 1 - before
	for i := range seg {
		lo := max(i-before, 0)
		hi := min(i+after, n-1)

		var sum [4]float64
		for j := lo; j <= hi; j++ {
			for k := 0; k < 4; k++ {
				sum[k] += float64(src[j][k])
			}
		}

		div := float64(hi - lo + 1)
		if mode == config.SmoothZeroPad {
			div = float64(window)
		}
		seg[i].Box = types.FaceBox{
			X:      int(sum[0] / div),
			Y:      int(sum[1] / div),
			Width:  int(sum[2] / div),
			Height: int(sum[3] / div),
		}
	}
}

// Metadata computes the time bounds of every segment at fps.
func Metadata(segments []types.Segment, fps float64) []types.SegmentMetadata {
	out := make([]types.SegmentMetadata, 0, len(segments))
	for _, seg := range segments {
		out = append(out, types.NewSegmentMetadata(seg, fps))
	}
	return out
}
