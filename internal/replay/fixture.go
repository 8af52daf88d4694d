package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/gate"
	"github.com/terravision/gaze-calibration/internal/logging"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Config      FixtureConfig   `json:"config"`
	Samples     []FixtureSample `json:"samples"`
	Expected    FixtureExpected `json:"expected"`
}

// FixtureSample is one recorded raw/target pair.
type FixtureSample struct {
	Raw        calibration.Point `json:"raw"`
	Target     calibration.Point `json:"target"`
	Confidence float64           `json:"confidence"`
}

// FixtureExpected lists the outcome a replay must reproduce. Zero-valued
// fields are not checked.
type FixtureExpected struct {
	Ready            *bool    `json:"ready,omitempty"`
	MaxErrorEstimate float64  `json:"max_error_estimate,omitempty"`
	Actions          []string `json:"actions,omitempty"`
}

// FixtureConfig bundles the model and gate settings for a replay run.
type FixtureConfig struct {
	Model FixtureModelConfig `json:"model"`
	Gate  FixtureGateConfig  `json:"gate"`
}

// FixtureModelConfig mirrors calibration.Config with JSON tags.
type FixtureModelConfig struct {
	Regularization float64 `json:"regularization"`
	Decay          float64 `json:"decay"`
	MinSamples     int     `json:"min_samples"`
	HistorySize    int     `json:"history_size"`
}

// FixtureGateConfig mirrors gate.GateConfig with JSON tags.
type FixtureGateConfig struct {
	MinConfidence float64 `json:"min_confidence"`
	ScreenWidth   float64 `json:"screen_width"`
	ScreenHeight  float64 `json:"screen_height"`
	MaxResidual   float64 `json:"max_residual"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(f Fixture, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToModelConfig converts the fixture model settings.
func (fc *FixtureConfig) ToModelConfig() calibration.Config {
	return calibration.Config{
		Regularization: fc.Model.Regularization,
		Decay:          fc.Model.Decay,
		MinSamples:     fc.Model.MinSamples,
		HistorySize:    fc.Model.HistorySize,
	}
}

// ToGateConfig converts the fixture gate settings.
func (fc *FixtureConfig) ToGateConfig() gate.GateConfig {
	return gate.GateConfig{
		MinConfidence: fc.Gate.MinConfidence,
		ScreenWidth:   fc.Gate.ScreenWidth,
		ScreenHeight:  fc.Gate.ScreenHeight,
		MaxResidual:   fc.Gate.MaxResidual,
	}
}

// NewFixtureConfig converts domain settings into fixture form.
func NewFixtureConfig(mc calibration.Config, gc gate.GateConfig) FixtureConfig {
	return FixtureConfig{
		Model: FixtureModelConfig{
			Regularization: mc.Regularization,
			Decay:          mc.Decay,
			MinSamples:     mc.MinSamples,
			HistorySize:    mc.HistorySize,
		},
		Gate: FixtureGateConfig{
			MinConfidence: gc.MinConfidence,
			ScreenWidth:   gc.ScreenWidth,
			ScreenHeight:  gc.ScreenHeight,
			MaxResidual:   gc.MaxResidual,
		},
	}
}

// GateSamples converts the fixture samples for Replay.
func (f *Fixture) GateSamples() []gate.Sample {
	out := make([]gate.Sample, len(f.Samples))
	for i, s := range f.Samples {
		out[i] = gate.Sample{Raw: s.Raw, Target: s.Target, Confidence: s.Confidence}
	}
	return out
}

// #endregion fixture-loader

// #region from-records

// FromRecords builds a fixture from logged update records. Each record's
// logged action becomes the expected action.
func FromRecords(description string, cfg FixtureConfig, recs []logging.SampleRecord) Fixture {
	f := Fixture{Description: description, Config: cfg}
	for _, r := range recs {
		f.Samples = append(f.Samples, FixtureSample{Raw: r.Raw, Target: r.Target, Confidence: r.Confidence})
		f.Expected.Actions = append(f.Expected.Actions, recordAction(r))
	}
	return f
}

func recordAction(r logging.SampleRecord) string {
	if r.GateVetoed {
		return ActionGateReject
	}
	return r.UpdateAction
}

// #endregion from-records

// #region compare

// Compare checks results and summary against the fixture expectations and
// returns one line per mismatch.
func (f *Fixture) Compare(results []ReplayResult, summary ReplaySummary) []string {
	var diffs []string
	if exp := f.Expected.Actions; len(exp) > 0 {
		if len(exp) != len(results) {
			diffs = append(diffs, fmt.Sprintf("expected %d results, got %d", len(exp), len(results)))
		}
		for i := 0; i < len(exp) && i < len(results); i++ {
			if results[i].Action != exp[i] {
				diffs = append(diffs, fmt.Sprintf("sample %d: expected action=%s, got %s (reason: %s)",
					i, exp[i], results[i].Action, results[i].Reason))
			}
		}
	}
	if f.Expected.Ready != nil && *f.Expected.Ready != summary.Ready {
		diffs = append(diffs, fmt.Sprintf("expected ready=%v, got %v", *f.Expected.Ready, summary.Ready))
	}
	if max := f.Expected.MaxErrorEstimate; max > 0 && !(summary.ErrorEstimate <= max) {
		diffs = append(diffs, fmt.Sprintf("error estimate %.3fpx exceeds %.3fpx", summary.ErrorEstimate, max))
	}
	if math.IsNaN(summary.ErrorEstimate) {
		diffs = append(diffs, "error estimate is NaN")
	}
	return diffs
}

// #endregion compare
