package state

import (
	"errors"
	"fmt"
	"log"

	"github.com/terravision/gaze-calibration/internal/calibration"
)

// #region model-bridge
// LoadModel restores the active calibration for key. A missing or unreadable
// blob yields a fresh model built from fallback.
func LoadModel(s *Store, key string, fallback calibration.Config, logger *log.Logger) *calibration.Model {
	if logger == nil {
		logger = log.Default()
	}
	data, err := s.Load(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Printf("state: load %s failed, starting fresh: %v", key, err)
		}
		m := calibration.NewModel(fallback)
		m.SetLogger(logger)
		return m
	}
	m, err := calibration.Decode(data, fallback)
	if err != nil {
		logger.Printf("state: stored calibration for %s unreadable, starting fresh: %v", key, err)
		m = calibration.NewModel(fallback)
	}
	m.SetLogger(logger)
	return m
}

// SaveModel serializes m and stores it as the new active version of key.
// Blob and summary columns come from one snapshot so they always agree.
func SaveModel(s *Store, key string, m *calibration.Model) (Version, error) {
	snap := m.Snapshot()
	data, err := snap.Encode()
	if err != nil {
		return Version{}, fmt.Errorf("serialize: %w", err)
	}
	v, err := s.Save(key, data, snap.SampleCount, snap.ErrorEstimate())
	if err != nil {
		return Version{}, fmt.Errorf("save model: %w", err)
	}
	return v, nil
}

// #endregion model-bridge
