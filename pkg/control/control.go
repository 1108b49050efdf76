package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"diskfiller/pkg/session"
	"diskfiller/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// replies are protobuf well-known types, so no generated code is needed.
const ServiceName = "diskfiller.control.v1.Control"

// Controller is the part of a session driven remotely.
type Controller interface {
	Pause() error
	Resume() error
	Stop() error
	Status() session.Status
}

// ControlServer is the handler type registered with gRPC.
type ControlServer interface {
	Pause(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Resume(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type Server struct {
	ctrl   Controller
	logger *zap.Logger
	server *grpc.Server
}

func NewServer(ctrl Controller, logger *zap.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: logger,
	}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.logCall))
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	defer close(stopped)

	go func() {
		select {
		case <-ctx.Done():
			s.server.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info("Control service listening", zap.String("address", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("control service failed: %w", err)
	}
	return nil
}

func (s *Server) Pause(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, toRPCError(s.ctrl.Pause())
}

func (s *Server) Resume(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, toRPCError(s.ctrl.Resume())
}

func (s *Server) Stop(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, toRPCError(s.ctrl.Stop())
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := statusToStruct(s.ctrl.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode status: %v", err)
	}
	return st, nil
}

func (s *Server) logCall(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("Control call failed", zap.String("method", info.FullMethod), zap.Error(err))
	} else {
		s.logger.Debug("Control call", zap.String("method", info.FullMethod))
	}
	return resp, err
}

func toRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNoRun),
		errors.Is(err, session.ErrNotRunning),
		errors.Is(err, session.ErrNotPaused):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Client talks to the control service of a running fill.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control service at addr. No I/O happens until the
// first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Pause(ctx context.Context) error {
	return c.invoke(ctx, "Pause", &emptypb.Empty{})
}

func (c *Client) Resume(ctx context.Context) error {
	return c.invoke(ctx, "Resume", &emptypb.Empty{})
}

func (c *Client) Stop(ctx context.Context) error {
	return c.invoke(ctx, "Stop", &emptypb.Empty{})
}

func (c *Client) Status(ctx context.Context) (session.Status, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, "Status", out); err != nil {
		return session.Status{}, err
	}
	return statusFromStruct(out), nil
}

func (c *Client) invoke(ctx context.Context, method string, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, &emptypb.Empty{}, out)
}

func statusToStruct(st session.Status) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"state":            st.State.String(),
		"run_id":           st.RunID,
		"volume":           st.Volume,
		"dir":              st.Dir,
		"target_mib":       st.TargetMiB,
		"chunk_mib":        st.ChunkMiB,
		"progress_mib":     st.ProgressMiB,
		"files_written":    st.FilesWritten,
		"last_log":         st.LastLog,
		"elapsed_ms":       st.Elapsed.Milliseconds(),
		"throughput_mibps": st.ThroughputMiBps,
		"outcome":          string(st.Outcome),
		"reason":           string(st.Reason),
		"error":            st.Error,
		"controls": map[string]interface{}{
			"start":  st.Controls.Start,
			"stop":   st.Controls.Stop,
			"pause":  st.Controls.Pause,
			"resume": st.Controls.Resume,
		},
	})
}

func statusFromStruct(s *structpb.Struct) session.Status {
	f := s.GetFields()
	str := func(key string) string { return f[key].GetStringValue() }
	num := func(key string) float64 { return f[key].GetNumberValue() }
	ctrl := f["controls"].GetStructValue().GetFields()

	return session.Status{
		State:           types.ParseRunState(str("state")),
		RunID:           str("run_id"),
		Volume:          str("volume"),
		Dir:             str("dir"),
		TargetMiB:       int64(num("target_mib")),
		ChunkMiB:        int64(num("chunk_mib")),
		ProgressMiB:     int64(num("progress_mib")),
		FilesWritten:    int(num("files_written")),
		LastLog:         str("last_log"),
		Elapsed:         time.Duration(num("elapsed_ms")) * time.Millisecond,
		ThroughputMiBps: num("throughput_mibps"),
		Outcome:         types.Outcome(str("outcome")),
		Reason:          types.Reason(str("reason")),
		Error:           str("error"),
		Controls: session.Controls{
			Start:  ctrl["start"].GetBoolValue(),
			Stop:   ctrl["stop"].GetBoolValue(),
			Pause:  ctrl["pause"].GetBoolValue(),
			Resume: ctrl["resume"].GetBoolValue(),
		},
	}
}
