// Package fixtures builds synthetic camera frames for pipeline tests.
package fixtures

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// FaceBox is where FaceFrame draws its face stand-in, as fractions of the frame.
var FaceBox = struct{ X, Y, W, H float64 }{X: 0.3, Y: 0.25, W: 0.4, H: 0.4}

// FaceFrame returns a gray BGR frame with a light rectangle where a face would be.
// The caller must close it.
func FaceFrame(width, height int) gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(64, 64, 64, 0), height, width, gocv.MatTypeCV8UC3)

	box := image.Rect(
		int(FaceBox.X*float64(width)),
		int(FaceBox.Y*float64(height)),
		int((FaceBox.X+FaceBox.W)*float64(width)),
		int((FaceBox.Y+FaceBox.H)*float64(height)),
	)
	gocv.Rectangle(&mat, box, color.RGBA{R: 220, G: 200, B: 180, A: 0}, -1)
	return mat
}

// LoadSequence returns n face frames. The caller must close each one.
func LoadSequence(width, height, n int) ([]*gocv.Mat, error) {
	if width <= 0 || height <= 0 || n <= 0 {
		return nil, fmt.Errorf("invalid sequence %dx%d x%d", width, height, n)
	}

	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := FaceFrame(width, height)
		frames[i] = &m
	}
	return frames, nil
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
