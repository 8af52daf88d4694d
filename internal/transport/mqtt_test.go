package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
)

func TestDecodeGaze(t *testing.T) {
	g, err := decodeGaze([]byte(`{"x":10.5,"y":20,"confidence":0.8,"at":1700000000000}`))
	if err != nil {
		t.Fatalf("decodeGaze: %v", err)
	}
	if g.X != 10.5 || g.Y != 20 || g.Confidence != 0.8 {
		t.Fatalf("unexpected sample %+v", g)
	}
	if g.At.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected timestamp %v", g.At)
	}

	if _, err := decodeGaze([]byte(`{"x":`)); err == nil {
		t.Fatal("expected error for truncated payload")
	}
	if _, err := decodeGaze([]byte(`{"x":1e400,"y":0}`)); err == nil {
		t.Fatal("expected error for out-of-range coordinate")
	}
}

func TestMQTTSource_PublishesDecodedGaze(t *testing.T) {
	c := newFakeClient()
	src := NewMQTTSource(c, "gaze/raw", quietLogger())
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []driver.GazeSample
	src.Subscribe(func(g driver.GazeSample) { got = append(got, g) })

	c.deliver("gaze/raw", `{"x":100,"y":200,"confidence":0.9}`)
	c.deliver("gaze/raw", `not json`)

	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0].X != 100 || got[0].At.IsZero() {
		t.Fatalf("unexpected sample %+v", got[0])
	}
}

func TestMQTTSource_SubscribeError(t *testing.T) {
	c := newFakeClient()
	c.subErr = errors.New("not connected")
	if err := NewMQTTSource(c, "gaze/raw", quietLogger()).Start(); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestRelay_ForwardsCorrectedGaze(t *testing.T) {
	c := newFakeClient()
	s := newSession()
	hub := NewHub()
	r := NewRelay(c, s, hub, "gaze/corrected", "gaze/calibration/sample", quietLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	// Before calibration the raw point passes through.
	hub.Publish(driver.GazeSample{X: 50, Y: 60, Confidence: 0.7})
	sent := c.sent()
	if len(sent) != 1 || sent[0].topic != "gaze/corrected" {
		t.Fatalf("expected one corrected publish, got %+v", sent)
	}
	var m GazeMessage
	if err := json.Unmarshal(sent[0].payload, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.X != 50 || m.Y != 60 || m.Ready {
		t.Fatalf("expected raw passthrough, got %+v", m)
	}

	trainSession(s)
	target := calibration.Point{X: 500, Y: 500}
	raw := shifted(target)
	hub.Publish(driver.GazeSample{X: raw.X, Y: raw.Y, Confidence: 0.7})
	sent = c.sent()
	json.Unmarshal(sent[len(sent)-1].payload, &m)
	if !m.Ready || math.Hypot(m.X-target.X, m.Y-target.Y) > 1 {
		t.Fatalf("expected corrected gaze near %v, got %+v", target, m)
	}

	r.Stop()
	hub.Publish(driver.GazeSample{X: 1, Y: 1, Confidence: 1})
	if len(c.sent()) != len(sent) {
		t.Fatal("expected no publishes after Stop")
	}
}

func TestRelay_AppliesCalibrationSamples(t *testing.T) {
	c := newFakeClient()
	s := newSession()
	r := NewRelay(c, s, NewHub(), "gaze/corrected", "gaze/calibration/sample", quietLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.deliver("gaze/calibration/sample", `{"raw":{"x":320,"y":140},"target":{"x":288,"y":162},"confidence":0.9}`)
	if s.Model().SampleCount() != 1 {
		t.Fatalf("expected 1 sample applied, got %d", s.Model().SampleCount())
	}

	// Low confidence is gated, garbage is ignored.
	c.deliver("gaze/calibration/sample", `{"raw":{"x":320,"y":140},"target":{"x":288,"y":162},"confidence":0.1}`)
	c.deliver("gaze/calibration/sample", `{oops`)
	if s.Model().SampleCount() != 1 {
		t.Fatalf("expected rejected samples to be ignored, got %d", s.Model().SampleCount())
	}
}

func TestRelay_DropsSamplesMissingPoints(t *testing.T) {
	c := newFakeClient()
	s := newSession()
	var buf bytes.Buffer
	r := NewRelay(c, s, NewHub(), "gaze/corrected", "gaze/calibration/sample", log.New(&buf, "", 0))
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.deliver("gaze/calibration/sample", `{"raw":{"x":320,"y":140},"confidence":0.9}`)
	c.deliver("gaze/calibration/sample", `{"target":{"x":288,"y":162},"confidence":0.9}`)
	c.deliver("gaze/calibration/sample", `{"raw":null,"target":{"x":288,"y":162}}`)

	if n := s.Model().SampleCount(); n != 0 {
		t.Fatalf("expected incomplete samples to leave the model untouched, got %d samples", n)
	}
	if s.Model().Weights() != calibration.IdentityWeights() {
		t.Fatal("expected weights unchanged")
	}
	if !strings.Contains(buf.String(), "missing raw or target") {
		t.Fatalf("expected drop to be logged, got %q", buf.String())
	}
}

func TestRelay_ConfirmedSampleWithoutConfidence(t *testing.T) {
	c := newFakeClient()
	s := newSession()
	r := NewRelay(c, s, NewHub(), "gaze/corrected", "gaze/calibration/sample", quietLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.deliver("gaze/calibration/sample", `{"raw":{"x":320,"y":140},"target":{"x":288,"y":162}}`)
	if n := s.Model().SampleCount(); n != 1 {
		t.Fatalf("expected sample without confidence to be applied, got %d samples", n)
	}

	// An explicit zero is still gated.
	c.deliver("gaze/calibration/sample", `{"raw":{"x":320,"y":140},"target":{"x":288,"y":162},"confidence":0}`)
	if n := s.Model().SampleCount(); n != 1 {
		t.Fatalf("expected explicit zero confidence to be rejected, got %d samples", n)
	}
}
