package state

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no active calibration.
var ErrNotFound = errors.New("calibration not found")

// #region version
// Version is one persisted snapshot of a serialized calibration model.
type Version struct {
	VersionID     string
	StorageKey    string
	ParentID      string
	ModelJSON     string
	SampleCount   int
	ErrorEstimate float64
	CreatedAt     time.Time
}

// #endregion version
