// Package app wires capture, sampling, inference and overlay reconciliation into
// the humanverify detection pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/ayusman/humanverify/internal/overlay"
	"github.com/ayusman/humanverify/internal/sampler"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config holds configuration options for the application.
type Config struct {
	// Camera is the frame source. Required.
	Camera      capture.Camera
	Orientation capture.Orientation

	Stride int

	Client    inference.Config
	Encoder   inference.Encoder // nil selects a JPEG encoder at the default quality
	Transport inference.Transport

	Overlay overlay.Config
}

// Stats is a point-in-time view of every pipeline stage.
type Stats struct {
	SessionID string          `json:"session_id"`
	Running   bool            `json:"running"`
	Enabled   bool            `json:"enabled"`
	Sampler   sampler.Stats   `json:"sampler"`
	Client    inference.Stats `json:"client"`
	Overlay   overlay.Stats   `json:"overlay"`
}

// App is the main application that turns camera frames into overlay updates.
type App struct {
	source     *capture.Source
	preview    *capture.Preview
	sampler    *sampler.Sampler
	client     *inference.Client
	reconciler *overlay.Reconciler

	enabled atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string
	results   sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Transport == nil {
		return nil, errors.New("app: inference transport is required")
	}

	s, err := sampler.New(config.Stride)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	encoder := config.Encoder
	if encoder == nil {
		encoder = inference.NewJPEGEncoder(inference.DefaultJPEGQuality)
	}

	a := &App{
		source:     capture.NewSource(config.Camera, config.Orientation),
		preview:    capture.NewPreview(),
		sampler:    s,
		client:     inference.NewClient(config.Client, encoder, config.Transport),
		reconciler: overlay.NewReconciler(config.Overlay),
	}
	a.enabled.Store(true)
	return a, nil
}

// SetEnabled pauses or resumes frame processing without releasing the camera.
// Pausing discards the results of requests still in flight, and they stay
// discarded after resuming.
func (a *App) SetEnabled(enabled bool) {
	if enabled {
		a.reconciler.Enable(a.source.LastSeq())
		a.enabled.Store(true)
	} else {
		a.enabled.Store(false)
		a.reconciler.Disable()
	}
	log.Info().Bool("enabled", enabled).Uint64("last_seq", a.source.LastSeq()).Msg("detection toggled")
}

// IsEnabled returns whether frames are currently processed.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Start opens the camera and begins the detection pipeline. Calling Start on a
// running pipeline does nothing.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.source.Camera().Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	if a.IsEnabled() {
		a.reconciler.Enable(a.source.LastSeq())
	}
	a.sessionID = uuid.NewString()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.runPipeline(ctx, a.done)

	log.Info().
		Str("session_id", a.sessionID).
		Int("stride", a.sampler.Stride()).
		Int("fps", a.source.Camera().FPS()).
		Msg("detection pipeline started")
	return nil
}

// Stop halts the pipeline and releases the camera. Results of requests still in
// flight are discarded: the reconciler is disabled before anything else.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done, session := a.cancel, a.done, a.sessionID
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	a.reconciler.Disable()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	a.client.Wait()
	a.results.Wait()

	if err := a.source.Camera().Close(); err != nil {
		log.Error().Err(err).Msg("error closing camera")
	}

	log.Info().Str("session_id", session).Msg("detection pipeline stopped")
}

// Close stops the pipeline and releases the preview buffer.
func (a *App) Close() error {
	a.Stop()
	return a.preview.Close()
}

// Running reports whether the pipeline loop is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// SessionID identifies the current or most recent run.
func (a *App) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// SetOrientation changes the device orientation attached to new frames.
func (a *App) SetOrientation(o capture.Orientation) {
	a.source.SetOrientation(o)
}

// SetViewSize changes the view the overlay is mapped into.
func (a *App) SetViewSize(size geometry.Size) error {
	return a.reconciler.SetViewSize(size)
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.source.Camera()
}

// Preview returns the live preview buffer fed by the capture loop.
func (a *App) Preview() *capture.Preview {
	return a.preview
}

// Reconciler returns the overlay reconciler.
func (a *App) Reconciler() *overlay.Reconciler {
	return a.reconciler
}

// Client returns the inference client.
func (a *App) Client() *inference.Client {
	return a.client
}

// Stats collects the counters of every stage.
func (a *App) Stats() Stats {
	a.mu.Lock()
	running, session := a.cancel != nil, a.sessionID
	a.mu.Unlock()

	return Stats{
		SessionID: session,
		Running:   running,
		Enabled:   a.IsEnabled(),
		Sampler:   a.sampler.Stats(),
		Client:    a.client.Stats(),
		Overlay:   a.reconciler.Stats(),
	}
}

// frameInterval returns the pacing of the capture loop for the camera rate.
func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return time.Second / time.Duration(fps)
}
