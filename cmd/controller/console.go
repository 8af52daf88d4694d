package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
)

// #region input
// readLines feeds trimmed lines of r into the returned channel, closing it at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

// #endregion input

// #region commands
func runConsole(ctx context.Context, stop context.CancelFunc, lines <-chan string, session *driver.Session, source driver.GazeSource, targets []calibration.Point) {
	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				// stdin closed (service mode): keep serving until signalled
				return
			}
			line = l
		}

		switch line {
		case "":
		case "quit", "exit":
			stop()
			return
		case "status":
			printStatus(session.Status())
		case "reset":
			if err := session.Reset(); err != nil {
				log.Printf("reset: %v", err)
				continue
			}
			fmt.Println("Calibration cleared.")
		case "calibrate":
			p := &consolePresenter{lines: lines, out: os.Stdout}
			d := driver.NewDriver(session, source, p, targets, driver.DefaultOptions())
			res, err := d.Run(ctx)
			if err != nil {
				log.Printf("calibration pass: %v", err)
				continue
			}
			fmt.Printf("  points=%d skipped=%d accuracy=%.1f%% rms=%.1fpx\n",
				len(res.Points), res.Skipped, res.Eval.Accuracy, res.Eval.RMSError)
			fmt.Printf("  %s\n", res.Eval.Reason)
		default:
			fmt.Println("unknown command")
		}
	}
}

// #endregion commands

// #region presenter
// consolePresenter shows targets on the operator terminal. The subject looks
// at the marker on the stage display and the operator presses Enter, which
// starts gaze collection for that target.
type consolePresenter struct {
	lines <-chan string
	out   io.Writer
}

func (p *consolePresenter) Present(ctx context.Context, index, total int, target calibration.Point) error {
	fmt.Fprintf(p.out, "  [%d/%d] target at (%.0f, %.0f), press Enter when the subject is looking at it\n",
		index+1, total, target.X, target.Y)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			return fmt.Errorf("console closed: %w", io.EOF)
		}
		return nil
	}
}

func (p *consolePresenter) Announce(msg string) {
	fmt.Fprintf(p.out, "  %s\n", msg)
}

// #endregion presenter
