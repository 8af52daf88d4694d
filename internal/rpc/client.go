package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
)

// #region types
// Decision is the outcome of a remote Update.
type Decision struct {
	Action        string
	Reason        string
	GateAction    string
	GateReason    string
	VersionID     string
	SampleCount   int
	ErrorEstimate float64
	Residual      float64
}

// #endregion types

// #region client-struct
// Client wraps the gRPC connection to a calibration service.
type Client struct {
	conn   *grpc.ClientConn
	client CalibrationServiceClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to the calibration gRPC server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewCalibrationServiceClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
func NewClientWithService(svc CalibrationServiceClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region update
// Update sends a confirmed raw/target pair.
func (c *Client) Update(ctx context.Context, raw, target calibration.Point) (Decision, error) {
	req, err := structpb.NewStruct(map[string]any{
		"raw_x":    raw.X,
		"raw_y":    raw.Y,
		"target_x": target.X,
		"target_y": target.Y,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("encode update: %w", err)
	}
	resp, err := c.client.Update(ctx, req)
	if err != nil {
		return Decision{}, fmt.Errorf("update rpc: %w", err)
	}
	f := resp.GetFields()
	return Decision{
		Action:        f["action"].GetStringValue(),
		Reason:        f["reason"].GetStringValue(),
		GateAction:    f["gate_action"].GetStringValue(),
		GateReason:    f["gate_reason"].GetStringValue(),
		VersionID:     f["version_id"].GetStringValue(),
		SampleCount:   int(f["sample_count"].GetNumberValue()),
		ErrorEstimate: f["error_estimate"].GetNumberValue(),
		Residual:      f["residual"].GetNumberValue(),
	}, nil
}

// #endregion update

// #region predict
// Predict corrects raw. The bool reports whether the model was ready.
func (c *Client) Predict(ctx context.Context, raw calibration.Point) (calibration.Point, bool, error) {
	req, err := structpb.NewStruct(map[string]any{"raw_x": raw.X, "raw_y": raw.Y})
	if err != nil {
		return calibration.Point{}, false, fmt.Errorf("encode predict: %w", err)
	}
	resp, err := c.client.Predict(ctx, req)
	if err != nil {
		return calibration.Point{}, false, fmt.Errorf("predict rpc: %w", err)
	}
	f := resp.GetFields()
	return calibration.Point{X: f["x"].GetNumberValue(), Y: f["y"].GetNumberValue()}, f["ready"].GetBoolValue(), nil
}

// #endregion predict

// #region status
// Status fetches the remote model summary.
func (c *Client) Status(ctx context.Context) (driver.Status, error) {
	resp, err := c.client.Status(ctx, &structpb.Struct{})
	if err != nil {
		return driver.Status{}, fmt.Errorf("status rpc: %w", err)
	}
	f := resp.GetFields()
	st := driver.Status{
		StorageKey:    f["storage_key"].GetStringValue(),
		Ready:         f["ready"].GetBoolValue(),
		SampleCount:   int(f["sample_count"].GetNumberValue()),
		ErrorEstimate: f["error_estimate"].GetNumberValue(),
		Warning:       f["warning"].GetBoolValue(),
	}
	rows := f["weights"].GetListValue().GetValues()
	for i := 0; i < len(rows) && i < 3; i++ {
		cols := rows[i].GetListValue().GetValues()
		for j := 0; j < len(cols) && j < 2; j++ {
			st.Weights[i][j] = cols[j].GetNumberValue()
		}
	}
	return st, nil
}

// #endregion status

// #region reset
// Reset clears the remote calibration.
func (c *Client) Reset(ctx context.Context) error {
	if _, err := c.client.Reset(ctx, &structpb.Struct{}); err != nil {
		return fmt.Errorf("reset rpc: %w", err)
	}
	return nil
}

// #endregion reset
