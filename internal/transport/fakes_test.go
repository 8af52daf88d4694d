package transport

import (
	"bytes"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
	"github.com/terravision/gaze-calibration/internal/eval"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// doneToken is an mqtt.Token that has already completed.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

// fakeClient records subscriptions and publishes.
type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []published
	subErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return doneToken{err: c.subErr}
	}
	c.handlers[topic] = callback
	return doneToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

// deliver invokes the handler registered for topic.
func (c *fakeClient) deliver(topic string, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// fakeMessage embeds mqtt.Message and overrides what the handlers read.
type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func newSession() *driver.Session {
	return driver.NewSession(calibration.NewModel(calibration.DefaultConfig()), nil, driver.SessionConfig{
		Key:  "test",
		Gate: gate.DefaultGateConfig(),
		Eval: eval.DefaultEvalConfig(),
	}, quietLogger())
}

// shifted is the raw gaze a tracker with a constant offset reports.
func shifted(target calibration.Point) calibration.Point {
	return calibration.Point{X: target.X + 35, Y: target.Y - 20}
}

func trainSession(s *driver.Session) {
	for _, target := range driver.DefaultTargets(1920, 1080) {
		s.ApplySample(gate.Sample{Raw: shifted(target), Target: target, Confidence: 1})
	}
}
