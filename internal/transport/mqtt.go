package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// #region messages
// GazeMessage is the JSON payload on the raw and corrected gaze topics.
type GazeMessage struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Ready      bool    `json:"ready,omitempty"`
	At         int64   `json:"at,omitempty"` // unix millis
}

// SampleMessage is a confirmed raw/target pair on the calibration sample topic.
// A missing confidence means the user confirmed the point, so it counts as 1.
type SampleMessage struct {
	Raw        *calibration.Point `json:"raw"`
	Target     *calibration.Point `json:"target"`
	Confidence *float64           `json:"confidence,omitempty"`
}

// Client is the part of a paho client the transport uses.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a paho client to broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

func subscribe(c Client, topic string, handler mqtt.MessageHandler) error {
	token := c.Subscribe(topic, 0, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// #endregion messages

// #region source
// MQTTSource turns the raw gaze topic into a driver.GazeSource.
type MQTTSource struct {
	*Hub
	client Client
	topic  string
	logger *log.Logger
}

// NewMQTTSource builds a source for topic. Call Start to subscribe.
func NewMQTTSource(client Client, topic string, logger *log.Logger) *MQTTSource {
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTSource{Hub: NewHub(), client: client, topic: topic, logger: logger}
}

// Start subscribes to the raw gaze topic.
func (s *MQTTSource) Start() error {
	if err := subscribe(s.client, s.topic, s.handle); err != nil {
		return err
	}
	s.logger.Printf("transport: subscribed to %s", s.topic)
	return nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	g, err := decodeGaze(msg.Payload())
	if err != nil {
		s.logger.Printf("transport: %s: %v", msg.Topic(), err)
		return
	}
	s.Publish(g)
}

func decodeGaze(payload []byte) (driver.GazeSample, error) {
	var m GazeMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return driver.GazeSample{}, fmt.Errorf("decode gaze: %w", err)
	}
	if !finite(m.X) || !finite(m.Y) {
		return driver.GazeSample{}, fmt.Errorf("decode gaze: non-finite coordinates")
	}
	at := time.Now()
	if m.At > 0 {
		at = time.UnixMilli(m.At)
	}
	return driver.GazeSample{X: m.X, Y: m.Y, Confidence: m.Confidence, At: at}, nil
}

// #endregion source

// #region relay
// Relay publishes corrected gaze and feeds confirmed samples into a session.
type Relay struct {
	client          Client
	session         *driver.Session
	source          driver.GazeSource
	correctedTopic  string
	sampleTopic     string
	logger          *log.Logger
	unsubscribeGaze func()
}

// NewRelay wires source to correctedTopic and sampleTopic to session.
func NewRelay(client Client, session *driver.Session, source driver.GazeSource, correctedTopic, sampleTopic string, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{
		client:         client,
		session:        session,
		source:         source,
		correctedTopic: correctedTopic,
		sampleTopic:    sampleTopic,
		logger:         logger,
	}
}

// Start subscribes to the sample topic and begins forwarding corrected gaze.
func (r *Relay) Start() error {
	if err := subscribe(r.client, r.sampleTopic, r.handleSample); err != nil {
		return err
	}
	r.unsubscribeGaze = r.source.Subscribe(r.forward)
	r.logger.Printf("transport: relaying corrected gaze to %s, samples from %s", r.correctedTopic, r.sampleTopic)
	return nil
}

// Stop ends gaze forwarding.
func (r *Relay) Stop() {
	if r.unsubscribeGaze != nil {
		r.unsubscribeGaze()
	}
}

func (r *Relay) forward(g driver.GazeSample) {
	p := r.session.Transform(g.Point())
	payload, err := json.Marshal(GazeMessage{
		X:          p.X,
		Y:          p.Y,
		Confidence: g.Confidence,
		Ready:      r.session.Model().IsReady(),
		At:         g.At.UnixMilli(),
	})
	if err != nil {
		r.logger.Printf("transport: encode corrected gaze: %v", err)
		return
	}
	r.client.Publish(r.correctedTopic, 0, false, payload)
}

func (r *Relay) handleSample(_ mqtt.Client, msg mqtt.Message) {
	var m SampleMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		r.logger.Printf("transport: %s: decode sample: %v", msg.Topic(), err)
		return
	}
	if m.Raw == nil || m.Target == nil {
		r.logger.Printf("transport: %s: sample missing raw or target, dropped", msg.Topic())
		return
	}
	conf := 1.0
	if m.Confidence != nil {
		conf = *m.Confidence
	}
	out := r.session.ApplySample(gate.Sample{Raw: *m.Raw, Target: *m.Target, Confidence: conf})
	if !out.Committed() {
		reason := out.Gate.Reason
		if out.Update != nil {
			reason = out.Update.Decision.Reason
		}
		r.logger.Printf("transport: sample not applied: %s", reason)
	}
}

// #endregion relay

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
