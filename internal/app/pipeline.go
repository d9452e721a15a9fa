package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/rs/zerolog/log"
)

// runPipeline is the capture loop. Every tick reads one frame, lets the sampler
// pick every Nth frame and submits picked frames without waiting for the reply.
// Replies are handed to the reconciler from their own goroutines, so they may
// arrive in any order.
func (a *App) runPipeline(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(frameInterval(a.source.Camera().FPS()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.source.Next()
			if err != nil {
				log.Warn().Err(err).Msg("error reading frame")
				continue
			}

			a.preview.Update(frame)
			a.handleFrame(ctx, frame)
		}
	}
}

// handleFrame takes ownership of frame. It reports whether the frame was
// submitted for inference.
func (a *App) handleFrame(ctx context.Context, frame capture.Frame) bool {
	req, ok := a.sampler.Observe(frame)
	if !ok {
		frame.Close()
		return false
	}

	results, err := a.client.Submit(ctx, req)
	if err != nil {
		frame.Close()
		if errors.Is(err, inference.ErrBusy) {
			log.Debug().Uint64("seq", req.Seq).Int("in_flight", a.client.InFlight()).Msg("inference busy, dropping frame")
		} else {
			log.Error().Err(err).Uint64("seq", req.Seq).Msg("submit failed")
		}
		return false
	}

	a.results.Add(1)
	go func() {
		defer a.results.Done()
		for res := range results {
			log.Debug().
				Uint64("seq", res.Seq).
				Str("outcome", res.Outcome.String()).
				Dur("latency", res.Latency).
				Msg("inference result")
			a.reconciler.OnResult(res)
		}
	}()
	return true
}
