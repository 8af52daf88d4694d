package driver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/eval"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// #region driver
// Driver walks the user through a target sequence and feeds the averaged gaze
// of every target into a session.
type Driver struct {
	session   *Session
	source    GazeSource
	presenter TargetPresenter
	targets   []calibration.Point
	opts      Options
}

// NewDriver builds a driver. Zero option fields take the defaults.
func NewDriver(session *Session, source GazeSource, presenter TargetPresenter, targets []calibration.Point, opts Options) *Driver {
	def := DefaultOptions()
	if opts.SampleWindow <= 0 {
		opts.SampleWindow = def.SampleWindow
	}
	if opts.SamplesPerPoint <= 0 {
		opts.SamplesPerPoint = def.SamplesPerPoint
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	return &Driver{
		session:   session,
		source:    source,
		presenter: presenter,
		targets:   targets,
		opts:      opts,
	}
}

// Run presents every target once, retrying silent ones, then validates the
// pass. It returns ErrNoSamples when no target produced gaze at all.
func (d *Driver) Run(ctx context.Context) (PassResult, error) {
	var res PassResult
	total := len(d.targets)

	d.presenter.Announce("Look at each target and confirm to record it.")

	for i, target := range d.targets {
		point := eval.PointResult{Target: target}
		for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
			if err := d.presenter.Present(ctx, i, total, target); err != nil {
				return res, fmt.Errorf("present target %d: %w", i+1, err)
			}
			avg, conf, n, err := d.collect(ctx)
			if err != nil {
				return res, fmt.Errorf("collect target %d: %w", i+1, err)
			}
			if n == 0 {
				d.presenter.Announce("No gaze recorded. Adjust your position and confirm again.")
				continue
			}
			point.Gaze = avg
			point.Samples = n
			outcome := d.session.ApplySample(gate.Sample{Raw: avg, Target: target, Confidence: conf})
			res.Outcomes = append(res.Outcomes, outcome)
			break
		}
		if point.Samples == 0 {
			res.Skipped++
		}
		res.Points = append(res.Points, point)
	}

	if res.Skipped == total {
		return res, fmt.Errorf("calibration pass: %w", ErrNoSamples)
	}

	res.Eval = eval.NewEvalHarness(d.session.Config().Eval).Run(d.session.Model(), res.Points)
	d.session.LogPass(res.Eval)

	switch {
	case !res.Eval.Passed:
		d.presenter.Announce(fmt.Sprintf("Calibration incomplete: %s.", res.Eval.Reason))
	case !res.Eval.Clean:
		d.presenter.Announce(fmt.Sprintf("Calibration done, but error is high (%.0fpx).", res.Eval.RMSError))
	default:
		d.presenter.Announce("Calibration complete.")
	}
	return res, nil
}

// #endregion driver

// #region collect
// collect averages gaze until SamplesPerPoint samples arrive or the window
// closes. Samples below the gate's confidence floor are dropped.
func (d *Driver) collect(ctx context.Context) (calibration.Point, float64, int, error) {
	minConf := d.session.Config().Gate.MinConfidence
	ch := make(chan GazeSample, d.opts.SamplesPerPoint)
	unsubscribe := d.source.Subscribe(func(g GazeSample) {
		if math.IsNaN(g.X) || math.IsNaN(g.Y) || math.IsInf(g.X, 0) || math.IsInf(g.Y, 0) {
			return
		}
		if g.Confidence < minConf {
			return
		}
		select {
		case ch <- g:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(d.opts.SampleWindow)
	defer timer.Stop()

	var sum calibration.Point
	var confSum float64
	n := 0
	for n < d.opts.SamplesPerPoint {
		select {
		case <-ctx.Done():
			return calibration.Point{}, 0, 0, ctx.Err()
		case <-timer.C:
			return average(sum, confSum, n)
		case g := <-ch:
			sum.X += g.X
			sum.Y += g.Y
			confSum += g.Confidence
			n++
		}
	}
	return average(sum, confSum, n)
}

func average(sum calibration.Point, confSum float64, n int) (calibration.Point, float64, int, error) {
	if n == 0 {
		return calibration.Point{}, 0, 0, nil
	}
	f := float64(n)
	return calibration.Point{X: sum.X / f, Y: sum.Y / f}, confSum / f, n, nil
}

// #endregion collect
