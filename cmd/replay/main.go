package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/terravision/gaze-calibration/internal/config"
	"github.com/terravision/gaze-calibration/internal/logging"
	"github.com/terravision/gaze-calibration/internal/replay"
	"github.com/terravision/gaze-calibration/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to calibration.db (DB mode)")
	key := flag.String("key", "terra-vision-calibration", "storage key (DB mode)")
	last := flag.Int("last", 1000, "number of most recent logged samples to replay (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/calibration.db [--key k] [--last N]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *key, *last)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

// runDBMode rebuilds the logged samples of key into a fixture and replays it
// with the current configuration, so drift from the logged actions shows up.
func runDBMode(dbPath, key string, last int) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	recs, err := logging.RecentSamples(store.DB(), key, last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read samples: %v\n", err)
		return 2
	}
	if len(recs) == 0 {
		fmt.Fprintf(os.Stderr, "no logged samples for key %s\n", key)
		return 2
	}

	cfg, err := config.Load(os.Getenv("CALIBRATION_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	f := replay.FromRecords("db replay of "+key, replay.NewFixtureConfig(cfg.Model(), cfg.Gate()), recs)
	return runFixture(&f)
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	return runFixture(f)
}

func runFixture(f *replay.Fixture) int {
	results, model := replay.Replay(f.Config.ToModelConfig(), f.GateSamples(), f.Config.ToGateConfig())
	summary := replay.Summarize(results, model)

	fmt.Printf("Fixture: %s\n\n", f.Description)
	fmt.Printf("%-5s  %-12s  %9s  %s\n", "#", "Action", "Resid px", "Reason")
	fmt.Printf("%-5s+-%-12s+-%9s+-%s\n", "-----", "------------", "---------", "------------------------------")
	for _, r := range results {
		resid := "-"
		if r.Update != nil {
			resid = fmt.Sprintf("%.2f", r.Update.Metrics.Residual)
		}
		fmt.Printf("%-5d  %-12s  %9s  %s\n", r.Index, r.Action, resid, r.Reason)
	}

	fmt.Printf("\n%d samples: %d commit, %d gate_reject, %d reject, %d no_op\n",
		summary.Total, summary.Commits, summary.GateRejects, summary.Rejects, summary.NoOps)
	fmt.Printf("ready=%v samples=%d error=%.2fpx\n", summary.Ready, summary.SampleCount, summary.ErrorEstimate)
	if summary.BatchCompared {
		fmt.Printf("max gap to batch ridge fit: %.4fpx\n", summary.BatchGap)
	}

	diffs := f.Compare(results, summary)
	if len(diffs) == 0 {
		fmt.Println("\nPASS")
		return 0
	}
	fmt.Println("\nFAIL")
	for _, d := range diffs {
		fmt.Printf("  %s\n", d)
	}
	return 1
}

// #endregion fixture-mode
