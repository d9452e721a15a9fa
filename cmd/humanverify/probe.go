package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/ayusman/humanverify/internal/sampler"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var probeOpts struct {
	orientation string
	mirrored    bool
	viewWidth   float64
	viewHeight  float64
}

var probeCmd = &cobra.Command{
	Use:   "probe <image>",
	Short: "Send one image to the inference service and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd.Context(), cmd, args[0])
	},
}

func init() {
	f := probeCmd.Flags()
	f.StringVar(&probeOpts.orientation, "orientation", "landscape-left", "orientation the image was captured in")
	f.BoolVar(&probeOpts.mirrored, "mirrored", false, "mirror the detection for a front camera")
	f.Float64Var(&probeOpts.viewWidth, "view-width", 0, "also map the detection into a view of this width")
	f.Float64Var(&probeOpts.viewHeight, "view-height", 0, "also map the detection into a view of this height")
	rootCmd.AddCommand(probeCmd)
}

type probeOutput struct {
	Seq       uint64         `json:"seq"`
	Outcome   string         `json:"outcome"`
	Label     string         `json:"label,omitempty"`
	Rect      *geometry.Rect `json:"rect,omitempty"`
	View      *geometry.Rect `json:"view_rect,omitempty"`
	ImageSize geometry.Size  `json:"image_size"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
}

func runProbe(ctx context.Context, cmd *cobra.Command, path string) error {
	orientation, err := capture.ParseOrientation(probeOpts.orientation)
	if err != nil {
		return err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return fmt.Errorf("could not read image %s", path)
	}

	transport, err := newTransport(cfg)
	if err != nil {
		mat.Close()
		return err
	}

	client := inference.NewClient(
		cfg.ClientSettings(),
		inference.NewJPEGEncoder(cfg.Inference.JPEGQuality),
		transport,
	)

	frame := capture.Frame{
		Seq:         1,
		Width:       mat.Cols(),
		Height:      mat.Rows(),
		Orientation: orientation,
		CapturedAt:  time.Now(),
		Mat:         &mat,
	}

	results, err := client.Submit(ctx, sampler.Request{Seq: frame.Seq, Frame: frame, SubmittedAt: time.Now()})
	if err != nil {
		frame.Close()
		return err
	}
	res := <-results

	out := probeOutput{
		Seq:       res.Seq,
		Outcome:   res.Outcome.String(),
		ImageSize: res.ImageSize,
		LatencyMS: res.Latency.Milliseconds(),
	}
	switch res.Outcome {
	case inference.OutcomeDetected:
		rect := res.Rect
		out.Rect = &rect
		out.Label = res.Label
		if probeOpts.viewWidth > 0 && probeOpts.viewHeight > 0 {
			tr := geometry.Transformer{VerticalBias: cfg.Transform.VerticalBias}
			view, err := tr.Transform(rect, res.ImageSize, geometry.Size{Width: probeOpts.viewWidth, Height: probeOpts.viewHeight}, probeOpts.mirrored)
			if err != nil {
				return err
			}
			out.View = &view
		}
	}
	if err := res.AsError(); err != nil {
		out.Error = err.Error()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	var failure *inference.Error
	if errors.As(res.AsError(), &failure) {
		return fmt.Errorf("inference failed: %s", failure.Kind)
	}
	return nil
}
