package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/humanverify/internal/app"
	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/config"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/ayusman/humanverify/internal/server"
	"github.com/ayusman/humanverify/internal/tray"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runOpts struct {
	endpoint   string
	socketPath string
	deviceID   int
	stride     int
	addr       string
	tray       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture from the camera and serve the live overlay",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runPipeline(cmd.Context())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.endpoint, "endpoint", "", "inference HTTP endpoint (selects the http transport)")
	f.StringVar(&runOpts.socketPath, "socket", "", "inference unix socket (selects the socket transport)")
	f.IntVar(&runOpts.deviceID, "device", 0, "camera device id")
	f.IntVar(&runOpts.stride, "stride", 0, "submit every Nth frame")
	f.StringVar(&runOpts.addr, "addr", "", "HTTP listen address")
	f.BoolVar(&runOpts.tray, "tray", false, "show a system tray icon")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("endpoint") {
		cfg.Inference.Transport = config.TransportHTTP
		cfg.Inference.Endpoint = runOpts.endpoint
	}
	if f.Changed("socket") {
		cfg.Inference.Transport = config.TransportSocket
		cfg.Inference.SocketPath = runOpts.socketPath
	}
	if f.Changed("device") {
		cfg.Camera.DeviceID = runOpts.deviceID
	}
	if f.Changed("stride") {
		cfg.Sampler.Stride = runOpts.stride
	}
	if f.Changed("addr") {
		cfg.Server.Addr = runOpts.addr
	}
	if f.Changed("tray") {
		cfg.Tray.Enabled = runOpts.tray
	}
}

func runPipeline(ctx context.Context) error {
	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{
		Camera:      capture.NewCamera(cfg.CameraSettings()),
		Orientation: cfg.Orientation(),
		Stride:      cfg.Sampler.Stride,
		Client:      cfg.ClientSettings(),
		Encoder:     inference.NewJPEGEncoder(cfg.Inference.JPEGQuality),
		Transport:   transport,
		Overlay:     cfg.OverlaySettings(),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" || !isDir(staticDir) {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Info().Str("dir", staticDir).Msg("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Overlay:   a.Reconciler(),
		Pipeline:  a,
		Preview:   a.Preview(),
	})

	if !cfg.Tray.Enabled {
		return srv.Serve(ctx, cfg.Server.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, cfg.Server.Addr)
	}()

	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnQuit(cancel)
	t.OnOpen(func() {
		log.Info().Str("url", "http://localhost"+cfg.Server.Addr).Msg("overlay available")
	})

	updates, unsubscribe := a.Reconciler().Subscribe()
	defer unsubscribe()
	go t.Follow(updates)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	// The tray owns the main goroutine until it quits
	t.Run()
	cancel()
	return <-errCh
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.humanverify/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if isDir(p) {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".humanverify", "web")
	if isDir(homeWebDir) {
		return homeWebDir
	}

	return ""
}
