package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-event
// LogEvent writes a calibration event to the calibration_events table.
func LogEvent(db *sql.DB, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO calibration_events (storage_key, kind, version_id, decision, reason, sample_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.StorageKey,
		ev.Kind,
		nullIfEmpty(ev.VersionID),
		ev.Decision,
		nullIfEmpty(ev.Reason),
		nullIfEmpty(ev.SampleJSON),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// LogSample encodes rec and records it as an update event.
func LogSample(db *sql.DB, key, versionID, decision, reason string, rec SampleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	return LogEvent(db, Event{
		StorageKey: key,
		Kind:       KindUpdate,
		VersionID:  versionID,
		Decision:   decision,
		Reason:     reason,
		SampleJSON: string(data),
	})
}

// #endregion log-event

// #region read-events
// RecentSamples returns the last n update records for key in chronological
// order. Rows without a decodable sample are skipped.
func RecentSamples(db *sql.DB, key string, n int) ([]SampleRecord, error) {
	rows, err := db.Query(
		`SELECT sample_json FROM (
			SELECT sample_json, created_at, rowid AS rid FROM calibration_events
			WHERE storage_key = ? AND kind = ?
			ORDER BY created_at DESC, rid DESC LIMIT ?
		) sub ORDER BY created_at ASC, rid ASC`, key, KindUpdate, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if !raw.Valid || raw.String == "" {
			continue
		}
		var rec SampleRecord
		if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// CountEvents returns how many events of kind were logged for key.
func CountEvents(db *sql.DB, key, kind string) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM calibration_events WHERE storage_key = ? AND kind = ?`, key, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// #endregion read-events

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
