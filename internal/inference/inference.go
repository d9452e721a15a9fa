// Package inference submits sampled frames to the remote face/emotion service and
// turns its replies into typed detection results.
package inference

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/humanverify/internal/geometry"
)

// NoFaceMessage is the error string the service uses to report an empty frame.
const NoFaceMessage = "No face detected"

var (
	// ErrBusy is returned by Submit when every in-flight slot is taken.
	// The caller keeps ownership of the frame and is expected to drop it.
	ErrBusy = errors.New("inference client busy")

	// ErrNoFaceDetected marks a negative detection. It is an outcome, not a failure.
	ErrNoFaceDetected = errors.New(NoFaceMessage)
)

// Outcome classifies a Result. Exactly one outcome applies to each result.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeDetected
	OutcomeNoFace
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDetected:
		return "detected"
	case OutcomeNoFace:
		return "no-face"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind names the failure class of an Error.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindDecode     ErrorKind = "decode"
	KindTimeout    ErrorKind = "timeout"
	KindEncode     ErrorKind = "encode"
	KindRemote     ErrorKind = "remote"
	KindMalformed  ErrorKind = "malformed"
	KindValidation ErrorKind = "validation"
)

// Error is the failure carried by a failed Result.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error of the given kind.
func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Result is the completed round trip for one sampled frame.
type Result struct {
	Seq       uint64
	Outcome   Outcome
	Rect      geometry.Rect // image coordinates, set for OutcomeDetected
	Label     string        // emotion, set for OutcomeDetected
	ImageSize geometry.Size // size of the image the service saw
	Err       *Error        // set for OutcomeFailed
	Latency   time.Duration
}

// Detected builds a detection result.
func Detected(seq uint64, rect geometry.Rect, label string, imageSize geometry.Size) Result {
	return Result{Seq: seq, Outcome: OutcomeDetected, Rect: rect, Label: label, ImageSize: imageSize}
}

// NoFace builds a negative result.
func NoFace(seq uint64) Result {
	return Result{Seq: seq, Outcome: OutcomeNoFace}
}

// Failed builds a failed result.
func Failed(seq uint64, err *Error) Result {
	return Result{Seq: seq, Outcome: OutcomeFailed, Err: err}
}

// AsError returns ErrNoFaceDetected for a negative result, the failure for a
// failed one and nil for a detection.
func (r Result) AsError() error {
	switch r.Outcome {
	case OutcomeNoFace:
		return ErrNoFaceDetected
	case OutcomeFailed:
		if r.Err != nil {
			return r.Err
		}
		return newError(KindMalformed, "failed result without error", nil)
	}
	return nil
}

// Validate reports whether the populated fields match the declared outcome.
func (r Result) Validate() error {
	switch r.Outcome {
	case OutcomeDetected:
		if r.Err != nil {
			return errors.New("detection carries an error")
		}
		if r.Label == "" {
			return errors.New("detection without label")
		}
		if r.Rect.Width <= 0 || r.Rect.Height <= 0 {
			return fmt.Errorf("detection with empty rectangle %gx%g", r.Rect.Width, r.Rect.Height)
		}
	case OutcomeNoFace:
		if r.Err != nil || r.Label != "" {
			return errors.New("no-face result carries detection fields")
		}
	case OutcomeFailed:
		if r.Err == nil {
			return errors.New("failed result without error")
		}
	default:
		return fmt.Errorf("unknown outcome %d", int(r.Outcome))
	}
	return nil
}

// Normalize returns r unchanged when it is well formed, and otherwise a failed
// result of kind KindMalformed for the same sequence number.
func (r Result) Normalize() Result {
	if err := r.Validate(); err != nil {
		out := Failed(r.Seq, newError(KindMalformed, "malformed result", err))
		out.Latency = r.Latency
		return out
	}
	return r
}

// Response is the reply body of the inference service. Every field is optional.
type Response struct {
	X       *int    `json:"x,omitempty" msgpack:"x,omitempty"`
	Y       *int    `json:"y,omitempty" msgpack:"y,omitempty"`
	W       *int    `json:"w,omitempty" msgpack:"w,omitempty"`
	H       *int    `json:"h,omitempty" msgpack:"h,omitempty"`
	Emotion *string `json:"emotion,omitempty" msgpack:"emotion,omitempty"`
	Error   *string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// IsNoFace reports whether the service signalled an empty frame.
func (r *Response) IsNoFace() bool {
	return r != nil && r.Emotion == nil && r.Error != nil && *r.Error == NoFaceMessage
}

// Result converts the response for frame seq into a Result.
func (r *Response) Result(seq uint64, imageSize geometry.Size) Result {
	if r == nil {
		return Failed(seq, newError(KindDecode, "empty response", nil))
	}

	if r.Emotion != nil {
		if r.X == nil || r.Y == nil || r.W == nil || r.H == nil {
			return Failed(seq, newError(KindDecode, "detection without complete box", nil))
		}
		rect := geometry.Rect{
			X:      float64(*r.X),
			Y:      float64(*r.Y),
			Width:  float64(*r.W),
			Height: float64(*r.H),
		}
		return Detected(seq, rect, *r.Emotion, imageSize)
	}

	if r.Error != nil {
		if *r.Error == NoFaceMessage {
			return NoFace(seq)
		}
		return Failed(seq, newError(KindRemote, *r.Error, nil))
	}

	return Failed(seq, newError(KindDecode, "response has neither emotion nor error", nil))
}
