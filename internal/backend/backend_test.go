//go:build !windows

package backend

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/fsm"
	"github.com/rbright/adaptord/internal/ipc"
	"github.com/rbright/adaptord/internal/runner"
)

// echoAdaptor is a minimal in-process wrapped application.
type echoAdaptor struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (e *echoAdaptor) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *echoAdaptor) Run(_ context.Context, payload map[string]any) (map[string]any, error) {
	return payload, nil
}

func (e *echoAdaptor) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}

func (e *echoAdaptor) Cleanup(context.Context) error { return nil }

func (e *echoAdaptor) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *echoAdaptor) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func startBackend(t *testing.T) (*echoAdaptor, *runner.Runner, ipc.Endpoint, config.Config, chan error) {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg, _ := config.Validate(config.Config{
		ShutdownGrace: config.Duration{Duration: 50 * time.Millisecond},
	})
	connFile := filepath.Join(t.TempDir(), "conn")

	a := &echoAdaptor{}
	r := runner.New(nil, a)
	b := New(nil, cfg, r, connFile)

	runDone := make(chan error, 1)
	go func() {
		runDone <- b.Run(context.Background())
	}()

	var ep ipc.Endpoint
	require.Eventually(t, func() bool {
		var err error
		ep, err = ipc.ReadConnectionFile(connFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return a, r, ep, cfg, runDone
}

func send(t *testing.T, ep ipc.Endpoint, req ipc.Request) ipc.Response {
	t.Helper()
	resp, err := ipc.Send(context.Background(), ep, req, time.Second, ipc.DefaultFrameLimit)
	require.NoError(t, err)
	return resp
}

func TestBackendFullLifecycle(t *testing.T) {
	a, r, ep, _, runDone := startBackend(t)

	resp := send(t, ep, ipc.Request{Command: ipc.CommandStatus})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateNotStarted), resp.State)

	resp = send(t, ep, ipc.Request{Command: ipc.CommandStart})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateStarted), resp.State)
	require.True(t, a.Started())

	resp = send(t, ep, ipc.Request{Command: ipc.CommandRun, Payload: map[string]any{"frame": "0042"}})
	require.True(t, resp.OK)
	require.Equal(t, "0042", resp.Result["frame"])

	resp = send(t, ep, ipc.Request{Command: ipc.CommandStop})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateStopped), resp.State)
	require.True(t, a.Stopped())

	resp = send(t, ep, ipc.Request{Command: ipc.CommandShutdown})
	require.True(t, resp.OK)

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("backend did not stop after shutdown command")
	}

	require.Equal(t, fsm.StateStopped, r.State())
	_, err := os.Stat(ep.Address)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBackendGuardsLifecycleMisuse(t *testing.T) {
	_, _, ep, _, runDone := startBackend(t)

	resp := send(t, ep, ipc.Request{Command: ipc.CommandRun})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "not started")

	resp = send(t, ep, ipc.Request{Command: ipc.CommandStart})
	require.True(t, resp.OK)

	resp = send(t, ep, ipc.Request{Command: ipc.CommandStart})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "already started")

	resp = send(t, ep, ipc.Request{Command: "render"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, `unknown command "render"`)

	send(t, ep, ipc.Request{Command: ipc.CommandShutdown})
	require.NoError(t, <-runDone)
}

func TestBackendContextCancellationStopsServer(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg, _ := config.Validate(config.Config{
		ShutdownGrace: config.Duration{Duration: 50 * time.Millisecond},
	})
	connFile := filepath.Join(t.TempDir(), "conn")
	b := New(nil, cfg, runner.New(nil, &echoAdaptor{}), connFile)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- b.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := ipc.ReadConnectionFile(connFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("backend did not stop on context cancellation")
	}

	_, err := os.Stat(connFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}
