package overlay

import (
	"sync"
	"time"

	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/rs/zerolog/log"
)

// Config holds the view parameters used to place detections.
type Config struct {
	// Mirrored flips detections horizontally; set for front-facing cameras.
	Mirrored bool

	// ViewSize is the size of the view the overlay is drawn on.
	ViewSize geometry.Size

	Transformer geometry.Transformer
}

// DefaultConfig returns a Config for a mirrored front camera on a 390x844 view.
func DefaultConfig() Config {
	return Config{
		Mirrored:    true,
		ViewSize:    geometry.Size{Width: 390, Height: 844},
		Transformer: geometry.NewTransformer(),
	}
}

// Stats reports reconciler counters.
type Stats struct {
	LastApplied uint64
	Applied     uint64
	Stale       uint64
	Failed      uint64
	Dropped     uint64
}

// Reconciler is the single writer of the overlay State.
//
// Results may arrive from any goroutine in any order. Only a result whose
// sequence number is greater than every sequence seen before may change the
// overlay; the check and the update happen under one lock.
type Reconciler struct {
	mu          sync.Mutex
	config      Config
	lastApplied uint64
	state       State
	disabled    bool
	onError     func(seq uint64, err *inference.Error)
	subs        map[int]chan State
	nextSub     int
	stats       Stats
}

// NewReconciler creates an enabled Reconciler with an empty overlay.
func NewReconciler(config Config) *Reconciler {
	return &Reconciler{
		config: config,
		subs:   make(map[int]chan State),
	}
}

// OnResult applies res to the overlay. It never fails; stale results, results
// received while disabled and failures leave the overlay as it is.
func (r *Reconciler) OnResult(res inference.Result) {
	r.mu.Lock()

	if r.disabled {
		r.stats.Dropped++
		r.mu.Unlock()
		return
	}

	res = res.Normalize()

	if res.Seq <= r.lastApplied {
		r.stats.Stale++
		last := r.lastApplied
		r.mu.Unlock()
		log.Debug().Uint64("seq", res.Seq).Uint64("last_applied", last).Msg("discarding stale result")
		return
	}
	r.lastApplied = res.Seq

	var failure *inference.Error
	switch res.Outcome {
	case inference.OutcomeNoFace:
		r.apply(State{Seq: res.Seq, UpdatedAt: time.Now()})

	case inference.OutcomeDetected:
		rect, err := r.config.Transformer.Transform(res.Rect, res.ImageSize, r.config.ViewSize, r.config.Mirrored)
		if err != nil {
			failure = &inference.Error{Kind: inference.KindValidation, Message: "transform detection", Err: err}
			break
		}
		r.apply(State{Rect: &rect, Label: res.Label, Seq: res.Seq, UpdatedAt: time.Now()})

	default:
		failure = res.Err
	}

	var hook func(uint64, *inference.Error)
	if failure != nil {
		r.stats.Failed++
		hook = r.onError
	}
	r.mu.Unlock()

	if failure != nil {
		// A transient failure keeps the last good overlay on screen
		log.Warn().Uint64("seq", res.Seq).Str("kind", string(failure.Kind)).Err(failure).Msg("detection failed")
		if hook != nil {
			hook(res.Seq, failure)
		}
	}
}

// apply replaces the state and notifies subscribers. r.mu must be held.
func (r *Reconciler) apply(s State) {
	r.state = s
	r.stats.Applied++

	log.Debug().Uint64("seq", s.Seq).Str("label", s.Label).Bool("visible", s.Visible()).Msg("overlay updated")

	for _, ch := range r.subs {
		offer(ch, s.clone())
	}
}

// offer delivers s on ch, replacing an undelivered older state if needed.
// Only the reconciler sends on subscriber channels, and always under r.mu.
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Snapshot returns a copy of the current overlay.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// LastApplied returns the staleness watermark: the highest sequence number
// accepted so far, or the floor passed to Enable if that is higher.
func (r *Reconciler) LastApplied() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastApplied
}

// Subscribe returns a channel that receives the current overlay immediately and
// every later change. A slow reader only misses intermediate states. The
// returned function unsubscribes and closes the channel.
func (r *Reconciler) Subscribe() (<-chan State, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++

	ch := make(chan State, 1)
	ch <- r.state.clone()
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

// OnError sets the function called for every failed result that was not stale.
// It runs outside the reconciler lock.
func (r *Reconciler) OnError(fn func(seq uint64, err *inference.Error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// SetViewSize changes the view the overlay is placed in. Invalid sizes are rejected.
func (r *Reconciler) SetViewSize(size geometry.Size) error {
	if !size.Valid() {
		return &geometry.ValidationError{Field: "view size", Size: size}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.ViewSize = size
	return nil
}

// ViewSize returns the current view size.
func (r *Reconciler) ViewSize() geometry.Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.ViewSize
}

// SetMirrored toggles horizontal mirroring for subsequent detections.
func (r *Reconciler) SetMirrored(mirrored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Mirrored = mirrored
}

// Mirrored reports whether detections are flipped horizontally.
func (r *Reconciler) Mirrored() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Mirrored
}

// Disable makes OnResult drop every result until Enable is called.
func (r *Reconciler) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = true
}

// Enable resumes processing. The staleness watermark is raised to floor, so a
// result with a seq at or below floor is stale even if it was never applied.
// Pass the last seq issued before the pause to reject requests still in flight.
func (r *Reconciler) Enable(floor uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = false
	if floor > r.lastApplied {
		r.lastApplied = floor
	}
}

// Enabled reports whether results are being applied.
func (r *Reconciler) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

// Stats returns the reconciler counters.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats
	st.LastApplied = r.lastApplied
	return st
}
