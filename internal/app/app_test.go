package app

import (
	"context"
	"testing"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/ayusman/humanverify/internal/overlay"
)

func testConfig(tr inference.Transport) Config {
	return Config{
		Camera:    capture.NewMockCamera(nil, false),
		Stride:    8,
		Client:    inference.DefaultConfig(),
		Encoder:   inference.StaticEncoder(),
		Transport: tr,
		Overlay: overlay.Config{
			Mirrored:    false,
			ViewSize:    geometry.Size{Width: 1080, Height: 1920},
			Transformer: geometry.Transformer{VerticalBias: 0},
		},
	}
}

func frame(seq uint64) capture.Frame {
	return capture.Frame{Seq: seq, Width: 1080, Height: 1920, CapturedAt: time.Now()}
}

// settle waits for every submitted request and every delivery goroutine.
func settle(a *App) {
	a.client.Wait()
	a.results.Wait()
}

func TestNew_Validation(t *testing.T) {
	tr := inference.NewMockTransport()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing camera", mutate: func(c *Config) { c.Camera = nil }},
		{name: "missing transport", mutate: func(c *Config) { c.Transport = nil }},
		{name: "zero stride", mutate: func(c *Config) { c.Stride = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tr)
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApp_SubmitsEveryStrideFrame(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponse(inference.FaceResponse(100, 200, 300, 300, "happy"))

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var submitted []uint64
	for seq := uint64(1); seq <= 24; seq++ {
		if a.handleFrame(context.Background(), frame(seq)) {
			submitted = append(submitted, seq)
		}
		// Let each request finish so the in-flight cap never interferes
		settle(a)
	}

	want := []uint64{8, 16, 24}
	if len(submitted) != len(want) {
		t.Fatalf("submitted %v, want %v", submitted, want)
	}
	for i := range want {
		if submitted[i] != want[i] {
			t.Errorf("submitted[%d] = %d, want %d", i, submitted[i], want[i])
		}
	}

	calls := tr.Calls()
	if len(calls) != 3 {
		t.Fatalf("transport calls = %d, want 3", len(calls))
	}
	for i, c := range calls {
		if c.Seq != want[i] {
			t.Errorf("call %d seq = %d, want %d", i, c.Seq, want[i])
		}
		if c.RequestID == "" {
			t.Errorf("call %d has no request id", i)
		}
	}

	s := a.Reconciler().Snapshot()
	if !s.Visible() || s.Label != "happy" || s.Seq != 24 {
		t.Errorf("Snapshot() = %+v, want happy at seq 24", s)
	}

	st := a.Stats()
	if st.Sampler.Observed != 24 || st.Sampler.Selected != 3 {
		t.Errorf("Sampler stats = %+v", st.Sampler)
	}
	if st.Overlay.Applied != 3 {
		t.Errorf("Overlay applied = %d, want 3", st.Overlay.Applied)
	}
}

func TestApp_LateResultIsDiscarded(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponseFor(8, inference.FaceResponse(0, 0, 100, 100, "sad"))
	tr.SetDelayFor(8, 200*time.Millisecond)
	tr.SetResponseFor(16, inference.FaceResponse(0, 0, 100, 100, "happy"))

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for seq := uint64(1); seq <= 16; seq++ {
		a.handleFrame(context.Background(), frame(seq))
	}
	settle(a)

	s := a.Reconciler().Snapshot()
	if s.Label != "happy" || s.Seq != 16 {
		t.Errorf("Snapshot() = %+v, want happy at seq 16", s)
	}
	if st := a.Reconciler().Stats(); st.Stale != 1 {
		t.Errorf("Stale = %d, want 1", st.Stale)
	}
}

func TestApp_DropsFramesWhenBusy(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetDelay(200 * time.Millisecond)

	cfg := testConfig(tr)
	cfg.Client.MaxInFlight = 1
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	submitted := 0
	for seq := uint64(1); seq <= 24; seq++ {
		if a.handleFrame(context.Background(), frame(seq)) {
			submitted++
		}
	}
	settle(a)

	if submitted != 1 {
		t.Errorf("submitted = %d, want 1", submitted)
	}
	if st := a.Client().Stats(); st.Busy != 2 {
		t.Errorf("Busy = %d, want 2", st.Busy)
	}
	if got := len(tr.Calls()); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestApp_ErrorKeepsOverlay(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponseFor(8, inference.FaceResponse(0, 0, 100, 100, "happy"))
	msg := "model exploded"
	tr.SetResponseFor(16, &inference.Response{Error: &msg})

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var kinds []inference.ErrorKind
	a.Reconciler().OnError(func(_ uint64, err *inference.Error) { kinds = append(kinds, err.Kind) })

	for seq := uint64(1); seq <= 16; seq++ {
		a.handleFrame(context.Background(), frame(seq))
		settle(a)
	}

	if s := a.Reconciler().Snapshot(); s.Label != "happy" || s.Seq != 8 {
		t.Errorf("Snapshot() = %+v, want happy at seq 8", s)
	}
	if len(kinds) != 1 || kinds[0] != inference.KindRemote {
		t.Errorf("error kinds = %v, want [remote]", kinds)
	}
}

func TestApp_NoFaceClearsOverlay(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponseFor(8, inference.FaceResponse(0, 0, 100, 100, "happy"))

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for seq := uint64(1); seq <= 16; seq++ {
		a.handleFrame(context.Background(), frame(seq))
		settle(a)
	}

	if s := a.Reconciler().Snapshot(); s.Visible() || s.Seq != 16 {
		t.Errorf("Snapshot() = %+v, want cleared at seq 16", s)
	}
}

func TestApp_StopDiscardsInFlightResults(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponse(inference.FaceResponse(0, 0, 100, 100, "happy"))
	tr.SetDelay(100 * time.Millisecond)

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for seq := uint64(1); seq <= 8; seq++ {
		a.handleFrame(context.Background(), frame(seq))
	}
	a.Stop()
	settle(a)

	if s := a.Reconciler().Snapshot(); s.Visible() {
		t.Errorf("result applied after Stop: %+v", s)
	}
	if st := a.Reconciler().Stats(); st.Dropped != 1 || st.LastApplied != 0 {
		t.Errorf("Stats() = %+v, want 1 dropped and nothing applied", st)
	}
}

func TestApp_SetEnabled(t *testing.T) {
	a, err := New(testConfig(inference.NewMockTransport()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !a.IsEnabled() {
		t.Error("new app should be enabled")
	}
	a.SetEnabled(false)
	if a.IsEnabled() {
		t.Error("IsEnabled() = true after SetEnabled(false)")
	}
	if a.Reconciler().Enabled() {
		t.Error("reconciler still enabled after SetEnabled(false)")
	}
	a.SetEnabled(true)
	if !a.IsEnabled() || !a.Reconciler().Enabled() {
		t.Error("SetEnabled(true) should resume the app and the reconciler")
	}
}

func TestApp_PauseDiscardsInFlightResults(t *testing.T) {
	tr := inference.NewMockTransport()
	tr.SetResponse(inference.FaceResponse(0, 0, 100, 100, "happy"))
	tr.SetDelay(100 * time.Millisecond)

	a, err := New(testConfig(tr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for seq := uint64(1); seq <= 8; seq++ {
		a.handleFrame(context.Background(), frame(seq))
	}
	a.SetEnabled(false)
	settle(a)

	if s := a.Reconciler().Snapshot(); s.Visible() {
		t.Errorf("result applied after pause: %+v", s)
	}
	if st := a.Reconciler().Stats(); st.Dropped != 1 || st.LastApplied != 0 {
		t.Errorf("Stats() = %+v, want 1 dropped and nothing applied", st)
	}
}

func TestApp_ResumeRejectsRequestsFromBeforePause(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that needs OpenCV frames")
	}

	frames := capture.BlankFrames(64, 48, 1)
	defer frames[0].Close()

	tr := inference.NewMockTransport()
	tr.SetResponse(inference.FaceResponse(0, 0, 16, 16, "happy"))
	tr.SetDelay(100 * time.Millisecond)

	cfg := testConfig(tr)
	cfg.Camera = capture.NewMockCamera(frames, true)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Camera().Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 8; i++ {
		f, err := a.source.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		a.handleFrame(context.Background(), f)
	}

	// Pause and resume while seq 8 is still in flight.
	a.SetEnabled(false)
	a.SetEnabled(true)
	settle(a)

	if s := a.Reconciler().Snapshot(); s.Visible() {
		t.Errorf("result issued before the pause was applied: %+v", s)
	}
	st := a.Reconciler().Stats()
	if st.Stale != 1 || st.Applied != 0 || st.LastApplied != 8 {
		t.Errorf("Stats() = %+v, want seq 8 stale and nothing applied", st)
	}
}

func TestApp_SetViewSize(t *testing.T) {
	a, err := New(testConfig(inference.NewMockTransport()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.SetViewSize(geometry.Size{}); err == nil {
		t.Error("SetViewSize(zero) should fail")
	}
	if err := a.SetViewSize(geometry.Size{Width: 390, Height: 844}); err != nil {
		t.Errorf("SetViewSize() error = %v", err)
	}
	if got := a.Reconciler().ViewSize(); got.Width != 390 || got.Height != 844 {
		t.Errorf("ViewSize() = %+v", got)
	}
}

func TestFrameInterval(t *testing.T) {
	if got := frameInterval(10); got != 100*time.Millisecond {
		t.Errorf("frameInterval(10) = %s, want 100ms", got)
	}
	if got := frameInterval(0); got != time.Second/capture.DefaultFPS {
		t.Errorf("frameInterval(0) = %s, want default", got)
	}
}
