package capture

import (
	"fmt"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// Orientation is the interface orientation of the device when a frame was captured.
type Orientation int

const (
	OrientationPortrait Orientation = iota
	OrientationPortraitUpsideDown
	OrientationLandscapeLeft
	OrientationLandscapeRight
)

// String returns the config-file name of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationPortraitUpsideDown:
		return "portrait-upside-down"
	case OrientationLandscapeLeft:
		return "landscape-left"
	case OrientationLandscapeRight:
		return "landscape-right"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation parses the names produced by Orientation.String.
// An empty string selects portrait.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "portrait":
		return OrientationPortrait, nil
	case "portrait-upside-down":
		return OrientationPortraitUpsideDown, nil
	case "landscape-left":
		return OrientationLandscapeLeft, nil
	case "landscape-right":
		return OrientationLandscapeRight, nil
	default:
		return OrientationPortrait, fmt.Errorf("unknown orientation %q", s)
	}
}

// ExifOrientation returns the EXIF orientation tag that makes the raw sensor image
// upright for this interface orientation. Front sensors deliver landscape buffers, so
// portrait needs a quarter turn.
func (o Orientation) ExifOrientation() int {
	switch o {
	case OrientationLandscapeLeft:
		return 1 // up
	case OrientationLandscapeRight:
		return 3 // down
	case OrientationPortraitUpsideDown:
		return 8 // left
	default:
		return 6 // right
	}
}

// RotateFlag returns the gocv rotation that applies ExifOrientation, and false when
// the image is already upright.
func (o Orientation) RotateFlag() (gocv.RotateFlag, bool) {
	switch o.ExifOrientation() {
	case 6:
		return gocv.Rotate90Clockwise, true
	case 3:
		return gocv.Rotate180Clockwise, true
	case 8:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}

// Upright returns the dimensions of a width x height sensor image after the
// orientation correction has been applied.
func (o Orientation) Upright(width, height int) (int, int) {
	switch o.ExifOrientation() {
	case 6, 8:
		return height, width
	default:
		return width, height
	}
}

// Frame is one captured image with its capture metadata.
// Seq is assigned by the Source, starts at 1 and increases by one per frame.
type Frame struct {
	Seq         uint64
	Width       int
	Height      int
	Orientation Orientation
	CapturedAt  time.Time
	Mat         *gocv.Mat
}

// Close releases the underlying image. It is safe to call on a frame without one.
func (f *Frame) Close() error {
	if f == nil || f.Mat == nil {
		return nil
	}
	err := f.Mat.Close()
	f.Mat = nil
	return err
}
