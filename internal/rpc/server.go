package rpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/driver"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// #region server
// Server exposes a calibration session over gRPC.
type Server struct {
	session *driver.Session
}

// NewServer wraps session.
func NewServer(session *driver.Session) *Server {
	return &Server{session: session}
}

// Update offers one raw/target pair. Confidence defaults to 1 for
// click-confirmed samples.
func (s *Server) Update(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := pointField(in, "raw_x", "raw_y")
	if err != nil {
		return nil, err
	}
	target, err := pointField(in, "target_x", "target_y")
	if err != nil {
		return nil, err
	}
	confidence := 1.0
	if v, ok := numberField(in, "confidence"); ok {
		confidence = v
	}

	out := s.session.ApplySample(gate.Sample{Raw: raw, Target: target, Confidence: confidence})
	resp := map[string]any{
		"gate_action": out.Gate.Action,
		"gate_reason": out.Gate.Reason,
		"version_id":  out.VersionID,
		"action":      "reject",
		"reason":      out.Gate.Reason,
	}
	if out.Update != nil {
		resp["action"] = out.Update.Decision.Action
		resp["reason"] = out.Update.Decision.Reason
		resp["sample_count"] = out.Update.Metrics.SampleCount
		resp["error_estimate"] = out.Update.Metrics.ErrorEstimate
		resp["residual"] = out.Update.Metrics.Residual
		resp["determinant"] = out.Update.Metrics.Determinant
	}
	return newStruct(resp)
}

// Predict corrects a raw gaze point. Before the model is ready the point is
// returned unchanged and ready is false.
func (s *Server) Predict(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := pointField(in, "raw_x", "raw_y")
	if err != nil {
		return nil, err
	}
	p := s.session.Transform(raw)
	return newStruct(map[string]any{
		"x":     p.X,
		"y":     p.Y,
		"ready": s.session.Model().IsReady(),
	})
}

// Status reports the live model summary.
func (s *Server) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.session.Status()
	weights := make([]any, 0, 3)
	for _, row := range st.Weights {
		weights = append(weights, []any{row[0], row[1]})
	}
	return newStruct(map[string]any{
		"storage_key":    st.StorageKey,
		"ready":          st.Ready,
		"sample_count":   st.SampleCount,
		"error_estimate": st.ErrorEstimate,
		"warning":        st.Warning,
		"weights":        weights,
	})
}

// Reset clears the model and its stored calibration.
func (s *Server) Reset(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.session.Reset(); err != nil {
		return nil, status.Errorf(codes.Internal, "reset: %v", err)
	}
	return &structpb.Struct{}, nil
}

// #endregion server

// #region fields
func numberField(in *structpb.Struct, key string) (float64, bool) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func pointField(in *structpb.Struct, xKey, yKey string) (calibration.Point, error) {
	x, okX := numberField(in, xKey)
	y, okY := numberField(in, yKey)
	if !okX || !okY {
		return calibration.Point{}, status.Errorf(codes.InvalidArgument, "%s and %s are required numbers", xKey, yKey)
	}
	return calibration.Point{X: x, Y: y}, nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// #endregion fields
