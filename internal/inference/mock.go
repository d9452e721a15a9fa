package inference

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
)

// MockTransport is a test implementation of the Transport interface.
// It allows tests to control replies, failures and latency per frame.
type MockTransport struct {
	mu        sync.Mutex
	response  *Response
	err       error
	delay     time.Duration
	delays    map[uint64]time.Duration
	responses map[uint64]*Response
	calls     []Payload
}

// NewMockTransport creates a new MockTransport that reports no face by default.
func NewMockTransport() *MockTransport {
	msg := NoFaceMessage
	return &MockTransport{
		response:  &Response{Error: &msg},
		delays:    make(map[uint64]time.Duration),
		responses: make(map[uint64]*Response),
	}
}

// SetResponse sets the reply returned for every frame without its own reply.
func (m *MockTransport) SetResponse(r *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = r
}

// SetResponseFor sets the reply for one frame.
func (m *MockTransport) SetResponseFor(seq uint64, r *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[seq] = r
}

// SetError sets the error returned by Detect.
func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay sets the latency applied to every frame.
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetDelayFor sets the latency applied to one frame.
func (m *MockTransport) SetDelayFor(seq uint64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[seq] = d
}

// Calls returns the payloads received so far.
func (m *MockTransport) Calls() []Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Payload, len(m.calls))
	copy(out, m.calls)
	return out
}

// Detect returns the configured reply after the configured delay, or the
// context error if the context ends first.
func (m *MockTransport) Detect(ctx context.Context, p Payload) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p)
	delay := m.delay
	if d, ok := m.delays[p.Seq]; ok {
		delay = d
	}
	resp := m.response
	if r, ok := m.responses[p.Seq]; ok {
		resp = r
	}
	err := m.err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FaceResponse builds a detection reply.
func FaceResponse(x, y, w, h int, emotion string) *Response {
	return &Response{X: &x, Y: &y, W: &w, H: &h, Emotion: &emotion}
}

// StaticEncoder returns an Encoder that skips image work and reports the frame's
// own dimensions. It lets pipelines run on frames without pixel data.
func StaticEncoder() Encoder {
	return EncoderFunc(func(frame capture.Frame) (Encoded, error) {
		return Encoded{
			Data: []byte{0xFF, 0xD8, 0xFF, 0xD9},
			Size: geometry.Size{Width: float64(frame.Width), Height: float64(frame.Height)},
		}, nil
	})
}
