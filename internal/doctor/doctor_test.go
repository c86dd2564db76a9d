//go:build !windows

package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/adaptord/internal/backend"
	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/ipc"
	"github.com/rbright/adaptord/internal/runner"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "adaptor")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-app")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-app", "--arg"}, "adaptor")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "adaptor command is available")
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()

	check := checkDir(dir, "adaptor.dir")
	require.True(t, check.Pass)

	check = checkDir(filepath.Join(dir, "missing"), "adaptor.dir")
	require.False(t, check.Pass)

	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	check = checkDir(file, "adaptor.dir")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "not a directory")
}

func TestCheckRuntimeDirWritable(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	check := checkRuntimeDir()
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "writable")
}

func TestCheckBackendWithoutConnectionFile(t *testing.T) {
	cfg, _ := config.Validate(config.Config{})

	check := checkBackend(context.Background(), cfg, filepath.Join(t.TempDir(), "absent"))
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "connection file does not exist")
}

func TestCheckBackendResponding(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg, _ := config.Validate(config.Config{
		RequestTimeout: config.Duration{Duration: time.Second},
		ShutdownGrace:  config.Duration{Duration: 50 * time.Millisecond},
	})
	connFile := filepath.Join(t.TempDir(), "conn")
	b := backend.New(nil, cfg, runner.New(nil, idleAdaptor{}), connFile)

	runDone := make(chan error, 1)
	go func() {
		runDone <- b.Run(context.Background())
	}()
	require.Eventually(t, func() bool {
		_, err := ipc.ReadConnectionFile(connFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	check := checkBackend(context.Background(), cfg, connFile)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "responding at")

	_, err := ipc.Send(context.Background(), mustEndpoint(t, connFile),
		ipc.Request{Command: ipc.CommandShutdown}, time.Second, ipc.DefaultFrameLimit)
	require.NoError(t, err)
	require.NoError(t, <-runDone)
}

func TestRunReportsMissingAdaptorCommand(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg, _ := config.Validate(config.Config{})
	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg}, "")
	require.False(t, report.OK())

	var sawAdaptor bool
	for _, check := range report.Checks {
		if check.Name == "adaptor" && !check.Pass {
			sawAdaptor = true
		}
	}
	require.True(t, sawAdaptor)
}

func TestRunAllPassing(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	binDir := t.TempDir()
	fakeApp := filepath.Join(binDir, "fake-app")
	require.NoError(t, os.WriteFile(fakeApp, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	cfg, _ := config.Validate(config.Config{
		Adaptor: config.AdaptorConfig{Argv: []string{"fake-app"}},
	})

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg, Exists: true}, "")
	require.True(t, report.OK(), report.String())
}

type idleAdaptor struct{}

func (idleAdaptor) Start(context.Context) error { return nil }
func (idleAdaptor) Run(_ context.Context, payload map[string]any) (map[string]any, error) {
	return payload, nil
}
func (idleAdaptor) Stop(context.Context) error    { return nil }
func (idleAdaptor) Cleanup(context.Context) error { return nil }

func mustEndpoint(t *testing.T, connFile string) ipc.Endpoint {
	t.Helper()
	ep, err := ipc.ReadConnectionFile(connFile)
	require.NoError(t, err)
	return ep
}
