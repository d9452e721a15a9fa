package inference

import (
	"errors"
	"fmt"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality matches a 0.5 compression quality.
const DefaultJPEGQuality = 50

// Encoded is an encoded image together with the size of the image it encodes.
type Encoded struct {
	Data []byte
	Size geometry.Size
}

// Encoder turns a captured frame into the payload sent to the service.
type Encoder interface {
	Encode(frame capture.Frame) (Encoded, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(frame capture.Frame) (Encoded, error)

// Encode calls f(frame).
func (f EncoderFunc) Encode(frame capture.Frame) (Encoded, error) {
	return f(frame)
}

// JPEGEncoder rotates a frame upright for its orientation and encodes it as JPEG.
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder returns a JPEGEncoder. Qualities outside 1..100 select the default.
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &JPEGEncoder{Quality: quality}
}

// Encode implements Encoder. The reported size is the size after rotation.
func (e *JPEGEncoder) Encode(frame capture.Frame) (Encoded, error) {
	if frame.Mat == nil || frame.Mat.Empty() {
		return Encoded{}, errors.New("frame has no image")
	}

	src := *frame.Mat
	if flag, ok := frame.Orientation.RotateFlag(); ok {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(src, &rotated, flag)
		src = rotated
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return Encoded{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by buf.Close
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return Encoded{
		Data: data,
		Size: geometry.Size{Width: float64(src.Cols()), Height: float64(src.Rows())},
	}, nil
}
