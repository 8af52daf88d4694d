package logging

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/terravision/gaze-calibration/internal/calibration"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE calibration_events (
		storage_key  TEXT NOT NULL,
		kind         TEXT NOT NULL,
		version_id   TEXT,
		decision     TEXT NOT NULL,
		reason       TEXT,
		sample_json  TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	ev := Event{
		StorageKey: "k",
		Kind:       KindReset,
		VersionID:  "v1",
		Decision:   "commit",
		Reason:     "user reset",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogEvent(db, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kind, decision, created string
	db.QueryRow("SELECT kind, decision, created_at FROM calibration_events").Scan(&kind, &decision, &created)
	if kind != KindReset {
		t.Errorf("expected kind reset, got %q", kind)
	}
	if decision != "commit" {
		t.Errorf("expected decision commit, got %q", decision)
	}
	if created != "2026-01-01T00:00:00Z" {
		t.Errorf("unexpected created_at %q", created)
	}
}

func TestLogEvent_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogEvent(db, Event{StorageKey: "k", Kind: KindLoad, Decision: "no_op"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM calibration_events").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogEvent_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogEvent(db, Event{StorageKey: "k", Kind: KindPass, Decision: "commit"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var version, reason, sample sql.NullString
	db.QueryRow("SELECT version_id, reason, sample_json FROM calibration_events").Scan(&version, &reason, &sample)
	if version.Valid || reason.Valid || sample.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestLogEvent_ClosedDB(t *testing.T) {
	db := setupDB(t)
	db.Close()
	if err := LogEvent(db, Event{StorageKey: "k", Kind: KindUpdate, Decision: "commit"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-event-tests

// #region sample-tests
func TestLogSample_RecentSamplesRoundTrip(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i := 0; i < 5; i++ {
		rec := SampleRecord{
			Raw:          calibration.Point{X: float64(i), Y: 1},
			Target:       calibration.Point{X: float64(i) + 10, Y: 2},
			Confidence:   0.9,
			GateAction:   "commit",
			UpdateAction: "commit",
			SampleCount:  i + 1,
		}
		if err := LogSample(db, "k", "", "commit", fmt.Sprintf("sample %d", i), rec); err != nil {
			t.Fatalf("LogSample: %v", err)
		}
	}
	// Noise that must be filtered out.
	LogEvent(db, Event{StorageKey: "other", Kind: KindUpdate, Decision: "commit", SampleJSON: `{"raw":{"x":99,"y":99}}`})
	LogEvent(db, Event{StorageKey: "k", Kind: KindUpdate, Decision: "commit", SampleJSON: "{bad"})
	LogEvent(db, Event{StorageKey: "k", Kind: KindReset, Decision: "commit"})

	recs, err := RecentSamples(db, "k", 4)
	if err != nil {
		t.Fatalf("RecentSamples: %v", err)
	}
	// The bad row occupies one of the four slots.
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Raw.X != 2 || recs[2].Raw.X != 4 {
		t.Fatalf("expected chronological order, got %+v", recs)
	}

	n, err := CountEvents(db, "k", KindUpdate)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 update events, got %d", n)
	}
}

// #endregion sample-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	if result := nullIfEmpty(""); result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	if result := nullIfEmpty("hello"); result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
