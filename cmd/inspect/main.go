package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/logging"
	"github.com/terravision/gaze-calibration/internal/rpc"
	"github.com/terravision/gaze-calibration/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to calibration.db")
	key := flag.String("key", "terra-vision-calibration", "storage key")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	rollback := flag.String("rollback", "", "make this version active again")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	addr := flag.String("addr", "", "query a running controller's gRPC address instead of a db")
	reset := flag.Bool("reset", false, "clear the remote calibration (with --addr)")
	predict := flag.String("predict", "", "correct one raw point X,Y remotely (with --addr)")
	flag.Parse()

	if (*dbPath == "") == (*addr == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/calibration.db [--key k] [--last N] [--version id] [--rollback id] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --addr host:port [--reset] [--predict X,Y] [--json]")
		os.Exit(2)
	}

	if *addr != "" {
		client, err := rpc.NewClient(*addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runRemoteMode(ctx, client, *reset, *predict, *jsonOut, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *rollback != "":
		err = runRollback(store, *key, *rollback)
	case *version != "":
		err = runDetailMode(store, *version, *jsonOut)
	default:
		err = runListMode(store, *key, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID     string  `json:"version_id"`
	Active        bool    `json:"active"`
	SampleCount   int     `json:"sample_count"`
	ErrorEstimate float64 `json:"error_estimate"`
	Ready         bool    `json:"ready"`
	CreatedAt     string  `json:"created_at"`
}

func runListMode(store *state.Store, key string, last int, jsonOut bool) error {
	versions, err := store.ListVersions(key, last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	var activeID string
	if cur, err := store.Current(key); err == nil {
		activeID = cur.VersionID
	}

	// Store returns DESC, reverse for chronological
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = listRow{
			VersionID:     v.VersionID,
			Active:        v.VersionID == activeID,
			SampleCount:   v.SampleCount,
			ErrorEstimate: v.ErrorEstimate,
			Ready:         decodeReady(v.ModelJSON),
			CreatedAt:     v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	updates, _ := logging.CountEvents(store.DB(), key, logging.KindUpdate)
	resets, _ := logging.CountEvents(store.DB(), key, logging.KindReset)
	fmt.Printf("key %s: %d versions shown, %d logged updates, %d resets\n\n", key, len(rows), updates, resets)

	fmt.Printf("%-12s  %1s  %7s  %9s  %-5s  %s\n", "Version", "", "Samples", "Error px", "Ready", "Time")
	fmt.Printf("%-12s+-%1s+-%7s+-%9s+-%-5s+-%s\n", "------------", "-", "-------", "---------", "-----", "--------------------")
	for _, r := range rows {
		mark := ""
		if r.Active {
			mark = "*"
		}
		fmt.Printf("%-12s  %1s  %7d  %9.2f  %-5v  %s\n", short(r.VersionID), mark, r.SampleCount, r.ErrorEstimate, r.Ready, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailView struct {
	VersionID     string              `json:"version_id"`
	StorageKey    string              `json:"storage_key"`
	ParentID      string              `json:"parent_id,omitempty"`
	CreatedAt     string              `json:"created_at"`
	Ready         bool                `json:"ready"`
	SampleCount   int                 `json:"sample_count"`
	ErrorEstimate float64             `json:"error_estimate"`
	Config        calibration.Config  `json:"config"`
	Weights       calibration.Weights `json:"weights"`
	ErrorHistory  []float64           `json:"error_history"`
}

func runDetailMode(store *state.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	m, err := calibration.Decode(v.ModelJSON, calibration.DefaultConfig())
	if err != nil {
		return fmt.Errorf("decode version %s: %w", versionID, err)
	}
	snap := m.Snapshot()
	view := detailView{
		VersionID:     v.VersionID,
		StorageKey:    v.StorageKey,
		ParentID:      v.ParentID,
		CreatedAt:     v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Ready:         m.IsReady(),
		SampleCount:   snap.SampleCount,
		ErrorEstimate: m.ErrorEstimate(),
		Config:        m.Config(),
		Weights:       snap.Weights,
		ErrorHistory:  snap.ErrorHistory,
	}
	if jsonOut {
		return printJSON(view)
	}

	fmt.Printf("Version:   %s\n", view.VersionID)
	fmt.Printf("Key:       %s\n", view.StorageKey)
	if view.ParentID != "" {
		fmt.Printf("Parent:    %s\n", view.ParentID)
	}
	fmt.Printf("Created:   %s\n", view.CreatedAt)
	fmt.Printf("Samples:   %d (ready=%v, min %d)\n", view.SampleCount, view.Ready, view.Config.MinSamples)
	fmt.Printf("Error:     %.2fpx over last %d\n", view.ErrorEstimate, len(view.ErrorHistory))
	fmt.Printf("Ridge:     %g  decay %g\n\n", view.Config.Regularization, view.Config.Decay)
	fmt.Println("           out x       out y")
	for i, name := range []string{"x", "y", "1"} {
		fmt.Printf("  %-6s %10.5f  %10.5f\n", name, view.Weights[i][0], view.Weights[i][1])
	}
	return nil
}

// #endregion detail-mode

// #region rollback

func runRollback(store *state.Store, key, versionID string) error {
	if err := store.Rollback(key, versionID); err != nil {
		return err
	}
	err := logging.LogEvent(store.DB(), logging.Event{
		StorageKey: key,
		Kind:       logging.KindLoad,
		VersionID:  versionID,
		Decision:   "commit",
		Reason:     "manual rollback",
	})
	if err != nil {
		return err
	}
	fmt.Printf("key %s now points at %s\n", key, versionID)
	return nil
}

// #endregion rollback

// #region helpers

func decodeReady(data string) bool {
	m, err := calibration.Decode(data, calibration.DefaultConfig())
	if err != nil {
		return false
	}
	return m.IsReady()
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
