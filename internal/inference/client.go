package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/humanverify/internal/sampler"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client defaults.
const (
	DefaultMaxInFlight = 3
	DefaultTimeout     = 5 * time.Second
)

// Config holds configuration options for the inference client.
type Config struct {
	// MaxInFlight caps concurrent requests. Frames sampled while the cap is
	// reached are rejected with ErrBusy.
	MaxInFlight int

	// Timeout is the deadline of the transport call. It starts before encoding,
	// so a slow encoder shortens the transport's budget but is not interrupted.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxInFlight: DefaultMaxInFlight,
		Timeout:     DefaultTimeout,
	}
}

// Stats reports client counters.
type Stats struct {
	Submitted uint64
	Busy      uint64
	Failed    uint64
	InFlight  int
}

// Client encodes sampled frames and sends them to the inference service, one
// goroutine per request, with a bounded number of requests in flight.
type Client struct {
	config    Config
	encoder   Encoder
	transport Transport
	slots     chan struct{}
	wg        sync.WaitGroup

	submitted atomic.Uint64
	busy      atomic.Uint64
	failed    atomic.Uint64
}

// NewClient creates a Client. Non-positive config values select the defaults.
func NewClient(config Config, encoder Encoder, transport Transport) *Client {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultMaxInFlight
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		config:    config,
		encoder:   encoder,
		transport: transport,
		slots:     make(chan struct{}, config.MaxInFlight),
	}
}

// Submit starts the round trip for req and returns immediately. The returned
// channel yields exactly one Result and is then closed.
//
// On success the client takes ownership of req.Frame and closes it once encoded.
// When all slots are busy Submit returns ErrBusy and the caller keeps the frame.
func (c *Client) Submit(ctx context.Context, req sampler.Request) (<-chan Result, error) {
	select {
	case c.slots <- struct{}{}:
	default:
		c.busy.Add(1)
		return nil, ErrBusy
	}

	c.submitted.Add(1)
	out := make(chan Result, 1)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.slots }()

		res := c.roundTrip(ctx, req)
		if res.Outcome == OutcomeFailed {
			c.failed.Add(1)
		}
		out <- res
		close(out)
	}()

	return out, nil
}

// roundTrip never panics; any panic in the encoder or transport becomes a failed result.
func (c *Client) roundTrip(ctx context.Context, req sampler.Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(req.Seq, newError(KindTransport, "request panicked", fmt.Errorf("%v", r)))
		}
		res.Latency = time.Since(req.SubmittedAt)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	defer req.Frame.Close()

	encoded, err := c.encoder.Encode(req.Frame)
	req.Frame.Close()
	if err != nil {
		return Failed(req.Seq, newError(KindEncode, "encode frame", err))
	}
	req.Payload = encoded.Data

	requestID := uuid.NewString()
	log.Debug().
		Uint64("seq", req.Seq).
		Str("request_id", requestID).
		Int("bytes", len(req.Payload)).
		Msg("submitting frame")

	resp, err := c.transport.Detect(ctx, Payload{
		Seq:       req.Seq,
		RequestID: requestID,
		Image:     req.Payload,
	})
	if err != nil {
		return Failed(req.Seq, classify(ctx, err))
	}

	return resp.Result(req.Seq, encoded.Size)
}

// classify maps a transport error to an Error, preferring the timeout kind when
// the request deadline has passed.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "request timed out", err)
	}
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr
	}
	return newError(KindTransport, "request failed", err)
}

// InFlight returns the number of requests currently running.
func (c *Client) InFlight() int {
	return len(c.slots)
}

// Stats returns the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Busy:      c.busy.Load(),
		Failed:    c.failed.Load(),
		InFlight:  c.InFlight(),
	}
}

// Wait blocks until every submitted request has delivered its result.
func (c *Client) Wait() {
	c.wg.Wait()
}
