// Package overlay owns the overlay shown on top of the camera preview and
// reconciles detection results arriving out of order into it.
package overlay

import (
	"time"

	"github.com/ayusman/humanverify/internal/geometry"
)

// State is what the UI should currently draw. A nil Rect means nothing is drawn.
type State struct {
	Rect      *geometry.Rect `json:"rect"`
	Label     string         `json:"label"`
	Seq       uint64         `json:"seq"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Visible reports whether a face rectangle should be drawn.
func (s State) Visible() bool {
	return s.Rect != nil
}

// clone returns a copy that shares no memory with s.
func (s State) clone() State {
	if s.Rect != nil {
		r := *s.Rect
		s.Rect = &r
	}
	return s
}
