package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"diskfiller/pkg/session"
	"diskfiller/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeController struct {
	mu     sync.Mutex
	calls  []string
	err    error
	status session.Status
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Pause() error  { return f.record("pause") }
func (f *fakeController) Resume() error { return f.record("resume") }
func (f *fakeController) Stop() error   { return f.record("stop") }

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// startServer serves ctrl over an in-memory listener and returns a client
// connected to it.
func startServer(t *testing.T, ctrl Controller) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(ctrl, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, lis) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("control server did not shut down")
		}
	})
	return client
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestControlCalls(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl)
	ctx := callCtx(t)

	require.NoError(t, client.Pause(ctx))
	require.NoError(t, client.Resume(ctx))
	require.NoError(t, client.Stop(ctx))

	assert.Equal(t, []string{"pause", "resume", "stop"}, ctrl.calls)
}

func TestControlErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{session.ErrNoRun, codes.FailedPrecondition},
		{session.ErrNotRunning, codes.FailedPrecondition},
		{fmt.Errorf("wrapped: %w", session.ErrNotPaused), codes.FailedPrecondition},
		{fmt.Errorf("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			client := startServer(t, &fakeController{err: tt.err})

			err := client.Pause(callCtx(t))
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
			assert.Contains(t, status.Convert(err).Message(), tt.err.Error())
		})
	}
}

func TestControlStatus(t *testing.T) {
	want := session.Status{
		State:           types.StatePaused,
		RunID:           "b7f4c0de-1111-2222-3333-444455556666",
		Volume:          "/mnt/data",
		Dir:             "/mnt/data/filler",
		TargetMiB:       1024,
		ChunkMiB:        64,
		ProgressMiB:     192,
		FilesWritten:    3,
		LastLog:         "Paused.",
		Elapsed:         3500 * time.Millisecond,
		ThroughputMiBps: 54.5,
		Controls:        session.Controls{Stop: true, Resume: true},
	}
	client := startServer(t, &fakeController{status: want})

	got, err := client.Status(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestControlStatusFinished(t *testing.T) {
	want := session.Status{
		State:       types.StateFinished,
		RunID:       "run",
		ProgressMiB: 6,
		Outcome:     types.OutcomeFailed,
		Error:       "write filler_3.txt: no space left on device",
		Controls:    session.Controls{Start: true},
	}
	client := startServer(t, &fakeController{status: want})

	got, err := client.Status(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestControlServeStopsOnCancel(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	srv := NewServer(&fakeController{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, lis) }()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
