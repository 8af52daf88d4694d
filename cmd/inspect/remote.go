package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
	"github.com/terravision/gaze-calibration/internal/rpc"
)

// #region remote-mode

type remoteView struct {
	Status    driver.Status      `json:"status"`
	Reset     bool               `json:"reset,omitempty"`
	Raw       *calibration.Point `json:"raw,omitempty"`
	Corrected *calibration.Point `json:"corrected,omitempty"`
}

// runRemoteMode talks to a running controller: optional reset, then status,
// then an optional single-point correction.
func runRemoteMode(ctx context.Context, client *rpc.Client, reset bool, predict string, jsonOut bool, out io.Writer) error {
	var raw *calibration.Point
	if predict != "" {
		p, err := parsePoint(predict)
		if err != nil {
			return err
		}
		raw = &p
	}

	view := remoteView{Reset: reset}
	if reset {
		if err := client.Reset(ctx); err != nil {
			return err
		}
	}
	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	view.Status = st
	if raw != nil {
		corrected, _, err := client.Predict(ctx, *raw)
		if err != nil {
			return err
		}
		view.Raw, view.Corrected = raw, &corrected
	}

	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	if reset {
		fmt.Fprintln(out, "Remote calibration cleared.")
	}
	fmt.Fprintf(out, "Key:       %s\n", st.StorageKey)
	fmt.Fprintf(out, "Samples:   %d (ready=%v)\n", st.SampleCount, st.Ready)
	fmt.Fprintf(out, "Error:     %.2fpx", st.ErrorEstimate)
	if st.Warning {
		fmt.Fprint(out, " (above warning threshold)")
	}
	fmt.Fprintln(out)
	if view.Corrected != nil {
		fmt.Fprintf(out, "Predict:   (%.1f, %.1f) -> (%.1f, %.1f)\n", raw.X, raw.Y, view.Corrected.X, view.Corrected.Y)
	}
	return nil
}

func parsePoint(s string) (calibration.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return calibration.Point{}, fmt.Errorf("point %q: want X,Y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return calibration.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return calibration.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return calibration.Point{X: x, Y: y}, nil
}

// #endregion remote-mode
