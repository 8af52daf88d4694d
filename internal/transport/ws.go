package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the calibration UI is served from a kiosk origin
	},
}

// #region ws-messages
// WSMessage is sent by the calibration UI.
type WSMessage struct {
	Action string `json:"action"` // start, confirm, cancel, reset
}

// WSResponse is sent to the calibration UI.
type WSResponse struct {
	Type    string             `json:"type"` // target, announce, complete, error
	Point   int                `json:"point,omitempty"` // 1-based
	Total   int                `json:"total,omitempty"`
	Target  *calibration.Point `json:"target,omitempty"`
	Message string             `json:"message,omitempty"`
	Results *PassSummary       `json:"results,omitempty"`
}

// PassSummary is the calibration outcome shown to the user.
type PassSummary struct {
	Passed   bool    `json:"passed"`
	Clean    bool    `json:"clean"`
	Accuracy float64 `json:"accuracy"`
	RMSError float64 `json:"rms_error"`
	Points   int     `json:"points"`
	Skipped  int     `json:"skipped"`
}

// #endregion ws-messages

// #region bridge
// WSBridge serves the calibration UI over websockets and a small JSON API.
type WSBridge struct {
	session *driver.Session
	source  driver.GazeSource
	targets []calibration.Point
	opts    driver.Options
	logger  *log.Logger
}

// NewWSBridge builds a bridge running passes over targets.
func NewWSBridge(session *driver.Session, source driver.GazeSource, targets []calibration.Point, opts driver.Options, logger *log.Logger) *WSBridge {
	if logger == nil {
		logger = log.Default()
	}
	return &WSBridge{session: session, source: source, targets: targets, opts: opts, logger: logger}
}

// Routes registers the bridge handlers on mux.
func (b *WSBridge) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/calibration", b.handleCalibration)
	mux.HandleFunc("/ws/gaze", b.handleGaze)
	mux.HandleFunc("/api/status", b.handleStatus)
}

// #endregion bridge

// #region calibration-ws
// wsClient is one connected calibration UI. It presents targets and waits for
// the user's confirm action.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	confirm chan struct{}
	logger  *log.Logger
}

func (c *wsClient) send(resp WSResponse) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(resp); err != nil {
		c.logger.Printf("transport: websocket write error: %v", err)
	}
}

func (c *wsClient) sendError(msg string) {
	c.send(WSResponse{Type: "error", Message: msg})
}

// Present shows the target and waits for confirm.
func (c *wsClient) Present(ctx context.Context, index, total int, target calibration.Point) error {
	// Drop a confirm left over from a previous target.
	select {
	case <-c.confirm:
	default:
	}
	t := target
	c.send(WSResponse{
		Type:    "target",
		Point:   index + 1,
		Total:   total,
		Target:  &t,
		Message: fmt.Sprintf("Point %d of %d. Look at the target and confirm.", index+1, total),
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.confirm:
		return nil
	}
}

// Announce forwards a status message.
func (c *wsClient) Announce(msg string) {
	c.send(WSResponse{Type: "announce", Message: msg})
}

func (b *WSBridge) handleCalibration(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("transport: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn, confirm: make(chan struct{}, 1), logger: b.logger}

	var pass passControl
	defer pass.stop()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Printf("transport: websocket read error: %v", err)
			}
			return
		}

		switch msg.Action {
		case "start":
			if !pass.start(r.Context(), func(ctx context.Context) { b.runPass(ctx, client) }) {
				client.sendError("calibration already running")
			}

		case "confirm":
			select {
			case client.confirm <- struct{}{}:
			default:
			}

		case "cancel":
			b.logger.Printf("transport: calibration cancelled by user")
			pass.stop()

		case "reset":
			if err := b.session.Reset(); err != nil {
				client.sendError(err.Error())
				continue
			}
			client.Announce("Calibration cleared.")

		default:
			client.sendError(fmt.Sprintf("unknown action %q", msg.Action))
		}
	}
}

// passControl runs at most one pass per connection. A pass's context is
// cancelled when the pass returns or stop is called.
type passControl struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (p *passControl) start(parent context.Context, run func(context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	go func() {
		defer p.finish(cancel)
		run(ctx)
	}()
	return true
}

func (p *passControl) finish(cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	p.cancel = nil
	p.mu.Unlock()
}

func (p *passControl) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (b *WSBridge) runPass(ctx context.Context, client *wsClient) {
	d := driver.NewDriver(b.session, b.source, client, b.targets, b.opts)
	res, err := d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		client.Announce("Calibration cancelled.")
		return
	}
	if err != nil {
		client.sendError(err.Error())
		return
	}
	client.send(WSResponse{
		Type:    "complete",
		Message: res.Eval.Reason,
		Results: &PassSummary{
			Passed:   res.Eval.Passed,
			Clean:    res.Eval.Clean,
			Accuracy: res.Eval.Accuracy,
			RMSError: res.Eval.RMSError,
			Points:   res.Eval.Points,
			Skipped:  res.Skipped,
		},
	})
}

// #endregion calibration-ws

// #region gaze-ws
func (b *WSBridge) handleGaze(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("transport: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	out := make(chan GazeMessage, 32)
	unsubscribe := b.source.Subscribe(func(g driver.GazeSample) {
		p := b.session.Transform(g.Point())
		m := GazeMessage{X: p.X, Y: p.Y, Confidence: g.Confidence, Ready: b.session.Model().IsReady(), At: g.At.UnixMilli()}
		select {
		case out <- m:
		default: // slow reader, drop
		}
	})
	defer unsubscribe()

	// Reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case m := <-out:
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	}
}

// #endregion gaze-ws

// #region status
func (b *WSBridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(b.session.Status()); err != nil {
		b.logger.Printf("transport: json encode error: %v", err)
	}
}

// #endregion status
