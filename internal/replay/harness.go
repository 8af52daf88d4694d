package replay

import (
	"math"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// Replay actions. Model outcomes reuse the model's own action names.
const (
	ActionCommit     = "commit"
	ActionGateReject = "gate_reject"
	ActionReject     = "reject"
	ActionNoOp       = "no_op"
)

// #region types
// ReplayResult captures the outcome of replaying one sample.
type ReplayResult struct {
	Index  int
	Sample gate.Sample
	Action string // "commit" | "gate_reject" | "reject" | "no_op"
	Reason string

	GateDecision gate.GateDecision
	Update       *calibration.UpdateResult // nil if the gate rejected
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Total         int
	Commits       int
	GateRejects   int
	Rejects       int
	NoOps         int
	Ready         bool
	SampleCount   int
	ErrorEstimate float64
	Weights       calibration.Weights

	// Largest prediction gap between the online model and a one-shot ridge fit
	// of the committed samples. Only meaningful with decay 1.
	BatchGap      float64
	BatchCompared bool
}

// #endregion types

// #region replay
// Replay runs every sample through gate and model, entirely in memory.
func Replay(cfg calibration.Config, samples []gate.Sample, gateCfg gate.GateConfig) ([]ReplayResult, *calibration.Model) {
	model := calibration.NewModel(cfg)
	g := gate.NewGate(gateCfg)
	results := make([]ReplayResult, 0, len(samples))

	for i, s := range samples {
		decision := g.Evaluate(model, s)
		if decision.Vetoed {
			results = append(results, ReplayResult{
				Index:        i,
				Sample:       s,
				Action:       ActionGateReject,
				Reason:       decision.Reason,
				GateDecision: decision,
			})
			continue
		}

		res := model.Update(s.Raw, s.Target)
		results = append(results, ReplayResult{
			Index:        i,
			Sample:       s,
			Action:       res.Decision.Action,
			Reason:       res.Decision.Reason,
			GateDecision: decision,
			Update:       &res,
		})
	}
	return results, model
}

// #endregion replay

// #region summarize
// Summarize computes aggregate stats for results produced against model.
func Summarize(results []ReplayResult, model *calibration.Model) ReplaySummary {
	summary := ReplaySummary{
		Total:         len(results),
		Ready:         model.IsReady(),
		SampleCount:   model.SampleCount(),
		ErrorEstimate: model.ErrorEstimate(),
		Weights:       model.Weights(),
	}

	var committed []calibration.Sample
	for _, r := range results {
		switch r.Action {
		case ActionCommit:
			summary.Commits++
			committed = append(committed, calibration.Sample{Raw: r.Sample.Raw, Target: r.Sample.Target})
		case ActionGateReject:
			summary.GateRejects++
		case ActionReject:
			summary.Rejects++
		case ActionNoOp:
			summary.NoOps++
		}
	}

	if len(committed) == 0 {
		return summary
	}
	batch, err := calibration.FitBatch(committed, model.Config().Regularization)
	if err != nil {
		return summary
	}
	summary.BatchCompared = true
	for _, s := range committed {
		online := model.Predict(s.Raw)
		offline := batch.Apply(s.Raw)
		if gap := math.Hypot(online.X-offline.X, online.Y-offline.Y); gap > summary.BatchGap {
			summary.BatchGap = gap
		}
	}
	return summary
}

// #endregion summarize
