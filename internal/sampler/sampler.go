// Package sampler selects every Nth frame of a capture stream for inference.
package sampler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
)

// DefaultStride is the number of frames between two submissions.
const DefaultStride = 8

// Request is a frame selected for submission. Payload stays empty until the
// inference client encodes the frame.
type Request struct {
	Seq         uint64
	Frame       capture.Frame
	Payload     []byte
	SubmittedAt time.Time
}

// Stats reports sampler counters.
type Stats struct {
	Observed uint64
	Selected uint64
}

// Sampler counts observed frames and selects those whose count is a multiple of
// the stride. Observe is meant for a single producer; Stats may be read concurrently.
type Sampler struct {
	stride   uint64
	counter  atomic.Uint64
	selected atomic.Uint64
}

// New creates a Sampler. stride must be at least 1.
func New(stride int) (*Sampler, error) {
	if stride < 1 {
		return nil, fmt.Errorf("sampler stride must be >= 1, got %d", stride)
	}
	return &Sampler{stride: uint64(stride)}, nil
}

// Observe counts frame and returns a Request when the frame is selected.
// Frames that are not selected are left untouched for the caller to release.
func (s *Sampler) Observe(frame capture.Frame) (Request, bool) {
	n := s.counter.Add(1)
	if n%s.stride != 0 {
		return Request{}, false
	}

	s.selected.Add(1)
	return Request{
		Seq:         frame.Seq,
		Frame:       frame,
		SubmittedAt: time.Now(),
	}, true
}

// Stride returns the configured stride.
func (s *Sampler) Stride() int {
	return int(s.stride)
}

// Stats returns the number of observed and selected frames.
func (s *Sampler) Stats() Stats {
	return Stats{
		Observed: s.counter.Load(),
		Selected: s.selected.Load(),
	}
}
