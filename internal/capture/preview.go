package capture

import (
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Preview keeps a copy of the most recent frame for live viewers. Frames are only
// copied while at least one viewer is watching.
type Preview struct {
	viewers atomic.Int32

	mu     sync.Mutex
	mat    gocv.Mat
	seq    uint64
	closed bool
}

// NewPreview creates an empty Preview. Close releases its buffer.
func NewPreview() *Preview {
	return &Preview{mat: gocv.NewMat()}
}

// Watch registers a viewer. The returned function unregisters it.
func (p *Preview) Watch() func() {
	p.viewers.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { p.viewers.Add(-1) })
	}
}

// Watching reports whether any viewer is registered.
func (p *Preview) Watching() bool {
	return p.viewers.Load() > 0
}

// Update copies f into the preview buffer when someone is watching.
// The caller keeps ownership of f.
func (p *Preview) Update(f Frame) {
	if !p.Watching() || f.Mat == nil || f.Mat.Empty() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	f.Mat.CopyTo(&p.mat)
	p.seq = f.Seq
}

// Latest returns a clone of the buffered frame if it is newer than after.
// The caller must close the returned Mat.
func (p *Preview) Latest(after uint64) (gocv.Mat, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.seq <= after || p.mat.Empty() {
		return gocv.Mat{}, after, false
	}
	return p.mat.Clone(), p.seq, true
}

// Close releases the preview buffer.
func (p *Preview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.mat.Close()
}
