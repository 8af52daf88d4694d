package driver

import (
	"context"
	"sync"

	"github.com/terravision/gaze-calibration/internal/calibration"
)

// fakeSource emits a burst of gaze for the current target on every subscribe.
type fakeSource struct {
	mu         sync.Mutex
	target     calibration.Point
	distort    func(calibration.Point) calibration.Point
	confidence float64
	burst      int
	silent     map[calibration.Point]int // subscriptions left that emit nothing
	subs       int
}

func newFakeSource(distort func(calibration.Point) calibration.Point) *fakeSource {
	return &fakeSource{distort: distort, confidence: 0.9, burst: 12, silent: map[calibration.Point]int{}}
}

func (f *fakeSource) setTarget(p calibration.Point) {
	f.mu.Lock()
	f.target = p
	f.mu.Unlock()
}

func (f *fakeSource) Subscribe(fn func(GazeSample)) func() {
	f.mu.Lock()
	f.subs++
	target := f.target
	skip := f.silent[target] > 0
	if skip {
		f.silent[target]--
	}
	burst, conf := f.burst, f.confidence
	f.mu.Unlock()

	stop := make(chan struct{})
	if !skip {
		raw := f.distort(target)
		go func() {
			for i := 0; i < burst; i++ {
				select {
				case <-stop:
					return
				default:
				}
				fn(GazeSample{X: raw.X, Y: raw.Y, Confidence: conf})
			}
		}()
	}
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// fakePresenter confirms every target immediately.
type fakePresenter struct {
	mu        sync.Mutex
	source    *fakeSource
	presented []int
	announced []string
}

func (p *fakePresenter) Present(ctx context.Context, index, total int, target calibration.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.presented = append(p.presented, index)
	p.mu.Unlock()
	p.source.setTarget(target)
	return nil
}

func (p *fakePresenter) Announce(msg string) {
	p.mu.Lock()
	p.announced = append(p.announced, msg)
	p.mu.Unlock()
}

// inverse of a known eye-tracker distortion: the raw gaze the user would produce
// while looking at target.
func skewedGaze(target calibration.Point) calibration.Point {
	return calibration.Point{X: 0.9*target.X + 0.05*target.Y + 30, Y: 1.1*target.Y - 20}
}
