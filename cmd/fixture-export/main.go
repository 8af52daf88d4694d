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
	dbPath := flag.String("db", "", "path to calibration.db")
	key := flag.String("key", "terra-vision-calibration", "storage key")
	last := flag.Int("last", 50, "number of most recent logged samples to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/calibration.db --out path/to/fixture.json [--key k] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *key, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, key string, last int, outPath string) error {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	recs, err := logging.RecentSamples(store.DB(), key, last)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no logged samples for key %s in last %d events", key, last)
	}
	fmt.Printf("Found %d logged samples\n", len(recs))

	cfg, err := config.Load(os.Getenv("CALIBRATION_CONFIG"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	desc := fmt.Sprintf("exported from %s key %s (%d samples)", dbPath, key, len(recs))
	f := replay.FromRecords(desc, replay.NewFixtureConfig(cfg.Model(), cfg.Gate()), recs)

	// Readiness is only expected when the export starts from an empty model.
	if first := recs[0]; first.SampleCount <= 1 {
		ready := recs[len(recs)-1].SampleCount >= cfg.MinSamples
		f.Expected.Ready = &ready
	}

	if err := replay.WriteFixture(f, outPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", outPath)
	return nil
}

// #endregion export
