package logging

import (
	"time"

	"github.com/terravision/gaze-calibration/internal/calibration"
)

// Event kinds written to calibration_events.
const (
	KindUpdate = "update"
	KindReset  = "reset"
	KindPass   = "pass"
	KindLoad   = "load"
)

// #region event
// Event is a single row in the calibration_events table.
type Event struct {
	StorageKey string
	Kind       string // "update" | "reset" | "pass" | "load"
	VersionID  string
	Decision   string // "commit" | "reject" | "no_op"
	Reason     string
	SampleJSON string
	CreatedAt  time.Time
}

// #endregion event

// #region sample-record
// SampleRecord captures everything that fed one update, serialized into
// calibration_events.sample_json so sessions can be replayed offline.
type SampleRecord struct {
	Raw        calibration.Point `json:"raw"`
	Target     calibration.Point `json:"target"`
	Confidence float64           `json:"confidence"`

	// Gate output
	GateAction string `json:"gate_action"`
	GateVetoed bool   `json:"gate_vetoed"`
	GateReason string `json:"gate_reason"`

	// Model output, zero when the gate rejected the sample
	UpdateAction  string  `json:"update_action,omitempty"`
	Determinant   float64 `json:"determinant"`
	Residual      float64 `json:"residual"`
	SampleCount   int     `json:"sample_count"`
	ErrorEstimate float64 `json:"error_estimate"`
}

// #endregion sample-record
