package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// #region wire
// persistedState is the JSON layout stored under the calibration key.
// Pointer fields distinguish absent keys from zero values.
type persistedState struct {
	Regularization *float64    `json:"regularization,omitempty"`
	Decay          *float64    `json:"decay,omitempty"`
	MinSamples     *int        `json:"minSamples,omitempty"`
	HistorySize    *int        `json:"historySize,omitempty"`
	SampleCount    *int        `json:"sampleCount,omitempty"`
	XtX            [][]float64 `json:"XtX,omitempty"`
	XtY            [][]float64 `json:"XtY,omitempty"`
	Weights        [][]float64 `json:"weights,omitempty"`
	ErrorHistory   []float64   `json:"errorHistory"`
}

// ErrEmptyState reports an absent persisted model.
var ErrEmptyState = errors.New("empty calibration state")

// #endregion wire

// #region serialize
// Serialize encodes every field of the model as JSON.
func (m *Model) Serialize() (string, error) {
	return m.Snapshot().Encode()
}

// Encode produces the same JSON as Serialize for an already taken snapshot.
func (s State) Encode() (string, error) {
	p := persistedState{
		Regularization: &s.Regularization,
		Decay:          &s.Decay,
		MinSamples:     &s.MinSamples,
		HistorySize:    &s.HistorySize,
		SampleCount:    &s.SampleCount,
		XtX:            rows3(s.XtX),
		XtY:            rows2(s.XtY),
		Weights:        rows2(s.Weights),
		ErrorHistory:   s.ErrorHistory,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal calibration state: %w", err)
	}
	return string(data), nil
}

func rows3(m [3][3]float64) [][]float64 {
	out := make([][]float64, 3)
	for i := range m {
		out[i] = []float64{m[i][0], m[i][1], m[i][2]}
	}
	return out
}

func rows2(m [3][2]float64) [][]float64 {
	out := make([][]float64, 3)
	for i := range m {
		out[i] = []float64{m[i][0], m[i][1]}
	}
	return out
}

// #endregion serialize

// #region deserialize
// Deserialize restores a model from Serialize output. Absent or corrupt input yields a
// fresh model built from fallback, with a logged warning.
func Deserialize(data string, fallback Config) *Model {
	m, err := Decode(data, fallback)
	if err != nil {
		log.Printf("calibration: deserialize failed, using new model: %v", err)
		return NewModel(fallback)
	}
	return m
}

// Decode is Deserialize with the failure reported instead of absorbed.
// Keys missing from data take the fallback (then default) value.
func Decode(data string, fallback Config) (*Model, error) {
	if strings.TrimSpace(data) == "" {
		return nil, ErrEmptyState
	}
	var p persistedState
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal calibration state: %w", err)
	}

	cfg := fallback
	if p.Regularization != nil {
		if !(*p.Regularization > 0) || !isFinite(*p.Regularization) {
			return nil, fmt.Errorf("invalid regularization %v", *p.Regularization)
		}
		cfg.Regularization = *p.Regularization
	}
	if p.Decay != nil {
		if !(*p.Decay > 0 && *p.Decay <= 1) {
			return nil, fmt.Errorf("invalid decay %v", *p.Decay)
		}
		cfg.Decay = *p.Decay
	}
	if p.MinSamples != nil {
		if *p.MinSamples <= 0 {
			return nil, fmt.Errorf("invalid minSamples %d", *p.MinSamples)
		}
		cfg.MinSamples = *p.MinSamples
	}
	if p.HistorySize != nil {
		if *p.HistorySize <= 0 {
			return nil, fmt.Errorf("invalid historySize %d", *p.HistorySize)
		}
		cfg.HistorySize = *p.HistorySize
	}

	m := NewModel(cfg)

	if p.SampleCount != nil {
		if *p.SampleCount < 0 {
			return nil, fmt.Errorf("invalid sampleCount %d", *p.SampleCount)
		}
		m.sampleCount = *p.SampleCount
	}
	if p.XtX != nil {
		xtx, err := decodeRows(p.XtX, 3, "XtX")
		if err != nil {
			return nil, err
		}
		for i := range m.xtx {
			copy(m.xtx[i][:], xtx[i])
		}
	}
	if p.XtY != nil {
		xty, err := decodeRows(p.XtY, 2, "XtY")
		if err != nil {
			return nil, err
		}
		for i := range m.xty {
			copy(m.xty[i][:], xty[i])
		}
	}
	if p.Weights != nil {
		w, err := decodeRows(p.Weights, 2, "weights")
		if err != nil {
			return nil, err
		}
		for i := range m.weights {
			copy(m.weights[i][:], w[i])
		}
	}
	for _, e := range p.ErrorHistory {
		if !isFinite(e) || e < 0 {
			return nil, fmt.Errorf("invalid errorHistory entry %v", e)
		}
		m.pushError(e)
	}
	return m, nil
}

// decodeRows checks a 3-row matrix of the given width with finite entries.
func decodeRows(rows [][]float64, cols int, name string) ([][]float64, error) {
	if len(rows) != 3 {
		return nil, fmt.Errorf("%s: expected 3 rows, got %d", name, len(rows))
	}
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%s: row %d has %d columns, expected %d", name, i, len(r), cols)
		}
		for _, v := range r {
			if !isFinite(v) {
				return nil, fmt.Errorf("%s: non-finite entry in row %d", name, i)
			}
		}
	}
	return rows, nil
}

// #endregion deserialize
