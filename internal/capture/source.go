package capture

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source reads frames from a Camera and stamps them with sequence numbers and the
// current device orientation. Next must be called from a single goroutine.
type Source struct {
	camera Camera
	seq    atomic.Uint64

	mu          sync.RWMutex
	orientation Orientation
}

// NewSource wraps camera in a Source reporting the given orientation.
func NewSource(camera Camera, orientation Orientation) *Source {
	return &Source{
		camera:      camera,
		orientation: orientation,
	}
}

// SetOrientation changes the orientation attached to subsequent frames.
func (s *Source) SetOrientation(o Orientation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orientation = o
}

// Orientation returns the orientation attached to new frames.
func (s *Source) Orientation() Orientation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orientation
}

// Next reads the next frame. Sequence numbers are only consumed by successful reads,
// so they stay gapless. The caller owns the returned frame and must Close it.
func (s *Source) Next() (Frame, error) {
	mat, err := s.camera.ReadFrame()
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Seq:         s.seq.Add(1),
		Width:       mat.Cols(),
		Height:      mat.Rows(),
		Orientation: s.Orientation(),
		CapturedAt:  time.Now(),
		Mat:         mat,
	}, nil
}

// LastSeq returns the seq of the most recent frame, or 0 before the first read.
// It is safe to call while another goroutine calls Next.
func (s *Source) LastSeq() uint64 {
	return s.seq.Load()
}

// Camera returns the wrapped camera.
func (s *Source) Camera() Camera {
	return s.camera
}
