// Package geometry maps detection rectangles from camera image space into view space.
package geometry

import (
	"errors"
	"fmt"
)

// DefaultVerticalBias shifts the overlay up by this fraction of the scaled rectangle
// height so it sits slightly above the detected face.
const DefaultVerticalBias = 0.1

// ErrInvalidSize is returned when an image or view size has a zero or negative component.
var ErrInvalidSize = errors.New("invalid size")

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both components are strictly positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// ValidationError describes which size argument was rejected.
type ValidationError struct {
	Field string
	Size  Size
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %gx%g: %v", e.Field, e.Size.Width, e.Size.Height, ErrInvalidSize)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidSize).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSize
}

// Transformer converts rectangles between image and view coordinates.
type Transformer struct {
	// VerticalBias is the fraction of the scaled height the result is moved upward.
	VerticalBias float64
}

// NewTransformer returns a Transformer using DefaultVerticalBias.
func NewTransformer() Transformer {
	return Transformer{VerticalBias: DefaultVerticalBias}
}

// Transform maps rect from imageSize coordinates into viewSize coordinates.
// When mirrored is set the rectangle is flipped horizontally inside the image first,
// which undoes the reversal introduced by a front-facing camera.
func (t Transformer) Transform(rect Rect, imageSize, viewSize Size, mirrored bool) (Rect, error) {
	if !imageSize.Valid() {
		return Rect{}, &ValidationError{Field: "image size", Size: imageSize}
	}
	if !viewSize.Valid() {
		return Rect{}, &ValidationError{Field: "view size", Size: viewSize}
	}

	x := rect.X
	if mirrored {
		x = Mirror(rect, imageSize.Width).X
	}

	widthScale := viewSize.Width / imageSize.Width
	heightScale := viewSize.Height / imageSize.Height
	scaledHeight := rect.Height * heightScale

	return Rect{
		X:      x * widthScale,
		Y:      rect.Y*heightScale - scaledHeight*t.VerticalBias,
		Width:  rect.Width * widthScale,
		Height: scaledHeight,
	}, nil
}

// Transform maps rect using the default vertical bias.
func Transform(rect Rect, imageSize, viewSize Size, mirrored bool) (Rect, error) {
	return NewTransformer().Transform(rect, imageSize, viewSize, mirrored)
}

// Mirror flips rect horizontally inside a frame of the given width.
// Applying it twice returns the original rectangle.
func Mirror(rect Rect, width float64) Rect {
	rect.X = width - rect.X - rect.Width
	return rect
}
