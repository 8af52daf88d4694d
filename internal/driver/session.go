package driver

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/eval"
	"github.com/terravision/gaze-calibration/internal/gate"
	"github.com/terravision/gaze-calibration/internal/logging"
	"github.com/terravision/gaze-calibration/internal/state"
)

// #region session
// SessionConfig names the stored calibration and the thresholds around it.
type SessionConfig struct {
	Key  string
	Gate gate.GateConfig
	Eval eval.EvalConfig
}

// Session ties one calibration model to its store, gate and event log.
// A nil store keeps everything in memory.
type Session struct {
	mu     sync.Mutex
	model  *calibration.Model
	store  *state.Store
	gate   *gate.Gate
	cfg    SessionConfig
	logger *log.Logger
}

// NewSession wraps model. Pass a nil logger to use log.Default().
func NewSession(model *calibration.Model, store *state.Store, cfg SessionConfig, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		model:  model,
		store:  store,
		gate:   gate.NewGate(cfg.Gate),
		cfg:    cfg,
		logger: logger,
	}
}

// Model returns the live model.
func (s *Session) Model() *calibration.Model {
	return s.model
}

// Config returns the session thresholds.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// #endregion session

// #region apply
// ApplySample gates sample, feeds it to the model, records the event and
// persists the model after every commit.
func (s *Session) ApplySample(sample gate.Sample) SampleOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	decision := s.gate.Evaluate(s.model, sample)
	out := SampleOutcome{Gate: decision}

	rec := logging.SampleRecord{
		Raw:        sample.Raw,
		Target:     sample.Target,
		Confidence: sample.Confidence,
		GateAction: decision.Action,
		GateVetoed: decision.Vetoed,
		GateReason: decision.Reason,
	}

	if decision.Vetoed {
		s.logSample("reject", decision.Reason, "", rec)
		return out
	}

	res := s.model.Update(sample.Raw, sample.Target)
	out.Update = &res
	rec.UpdateAction = res.Decision.Action
	rec.Determinant = res.Metrics.Determinant
	rec.Residual = res.Metrics.Residual
	rec.SampleCount = res.Metrics.SampleCount
	rec.ErrorEstimate = res.Metrics.ErrorEstimate

	if res.Committed() && s.store != nil {
		v, err := state.SaveModel(s.store, s.cfg.Key, s.model)
		if err != nil {
			s.logger.Printf("driver: persist calibration: %v", err)
		} else {
			out.VersionID = v.VersionID
		}
	}
	if res.Committed() && res.Metrics.ErrorEstimate > s.cfg.Eval.WarnThreshold && s.cfg.Eval.WarnThreshold > 0 {
		s.logger.Printf("driver: calibration error %.1fpx above %.0fpx", res.Metrics.ErrorEstimate, s.cfg.Eval.WarnThreshold)
	}

	s.logSample(res.Decision.Action, res.Decision.Reason, out.VersionID, rec)
	return out
}

// #endregion apply

// #region session-ops
// Transform applies the correction once the model is ready.
func (s *Session) Transform(raw calibration.Point) calibration.Point {
	return s.model.Transform(raw)
}

// Reset forgets every sample and drops the stored calibration.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.model.Reset()
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(s.cfg.Key); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.logEvent(logging.Event{Kind: logging.KindReset, Decision: "commit", Reason: "calibration cleared"})
	return nil
}

// Persist stores the current model as a new version. It is a no-op without a store.
func (s *Session) Persist() (state.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return state.Version{}, nil
	}
	return state.SaveModel(s.store, s.cfg.Key, s.model)
}

// Status summarizes the live model.
func (s *Session) Status() Status {
	snap := s.model.Snapshot()
	rms := s.model.ErrorEstimate()
	return Status{
		StorageKey:    s.cfg.Key,
		Ready:         s.model.IsReady(),
		SampleCount:   snap.SampleCount,
		ErrorEstimate: rms,
		Warning:       s.cfg.Eval.WarnThreshold > 0 && rms > s.cfg.Eval.WarnThreshold,
		Weights:       snap.Weights,
	}
}

// LogPass records the validation of a finished pass.
func (s *Session) LogPass(res eval.EvalResult) {
	decision := "commit"
	if !res.Passed {
		decision = "reject"
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Printf("driver: encode pass result: %v", err)
	}
	s.logEvent(logging.Event{Kind: logging.KindPass, Decision: decision, Reason: res.Reason, SampleJSON: string(data)})
}

// #endregion session-ops

// #region log-helpers
func (s *Session) logSample(decision, reason, versionID string, rec logging.SampleRecord) {
	if s.store == nil {
		return
	}
	if err := logging.LogSample(s.store.DB(), s.cfg.Key, versionID, decision, reason, rec); err != nil {
		s.logger.Printf("driver: logging error: %v", err)
	}
}

func (s *Session) logEvent(ev logging.Event) {
	if s.store == nil {
		return
	}
	ev.StorageKey = s.cfg.Key
	if err := logging.LogEvent(s.store.DB(), ev); err != nil {
		s.logger.Printf("driver: logging error: %v", err)
	}
}

// #endregion log-helpers
