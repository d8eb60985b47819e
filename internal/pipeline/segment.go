package pipeline

import (
	"fmt"
	"iter"
	"time"
)

// Segment is a contiguous time range [StartMs, EndMs) of the source audio.
type Segment struct {
	Index   int
	StartMs int64
	EndMs   int64
}

// Duration returns the length of the segment.
func (s Segment) Duration() time.Duration {
	return time.Duration(s.EndMs-s.StartMs) * time.Millisecond
}

// String returns a human-readable range for logging, e.g. "60.00s - 120.00s".
func (s Segment) String() string {
	return fmt.Sprintf("%.2fs - %.2fs", float64(s.StartMs)/1000, float64(s.EndMs)/1000)
}

// Segmenter divides audio into consecutive fixed-length windows.
type Segmenter struct {
	lengthMs int64
}

// NewSegmenter returns a Segmenter producing windows of lengthSec seconds.
func NewSegmenter(lengthSec int) (*Segmenter, error) {
	if lengthSec <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d", lengthSec)
	}
	return &Segmenter{lengthMs: int64(lengthSec) * 1000}, nil
}

// LengthMs returns the window length in milliseconds.
func (s *Segmenter) LengthMs() int64 { return s.lengthMs }

// Count returns ceil(totalMs / length).
func (s *Segmenter) Count(totalMs int64) int {
	if totalMs <= 0 {
		return 0
	}
	return int((totalMs + s.lengthMs - 1) / s.lengthMs)
}

// Segments yields the windows covering [0, totalMs) in order. The last window
// is clipped to totalMs.
func (s *Segmenter) Segments(totalMs int64) iter.Seq[Segment] {
	count := s.Count(totalMs)
	return func(yield func(Segment) bool) {
		for i := range count {
			start := int64(i) * s.lengthMs
			end := min(start+s.lengthMs, totalMs)
			if !yield(Segment{Index: i, StartMs: start, EndMs: end}) {
				return
			}
		}
	}
}
