package adaptor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNotConfigured marks a fatal configuration error: there is no wrapped
// application to drive.
var ErrNotConfigured = errors.New("adaptor command is not configured")

// CommandConfig describes how to launch and stop the wrapped executable.
type CommandConfig struct {
	Argv        []string
	Dir         string
	StopTimeout time.Duration
}

// CommandAdaptor drives an external executable over a line protocol: one
// JSON payload line in, one result line out per unit of work. Closing stdin
// asks the process to exit.
type CommandAdaptor struct {
	logger      *slog.Logger
	cfg         CommandConfig
	initData    map[string]any
	pathMapping map[string]any

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func NewCommand(logger *slog.Logger, cfg CommandConfig, initData, pathMapping map[string]any) *CommandAdaptor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &CommandAdaptor{
		logger:      logger,
		cfg:         cfg,
		initData:    initData,
		pathMapping: pathMapping,
	}
}

// Resolve checks that the configured executable can be located without
// launching it. Frontends fail fast on this before spawning a backend.
func (a *CommandAdaptor) Resolve() error {
	if len(a.cfg.Argv) == 0 {
		return ErrNotConfigured
	}
	if _, err := exec.LookPath(a.cfg.Argv[0]); err != nil {
		return fmt.Errorf("locate adaptor executable %q: %w", a.cfg.Argv[0], err)
	}
	return nil
}

func (a *CommandAdaptor) Start(ctx context.Context) error {
	if err := a.Resolve(); err != nil {
		return err
	}
	if a.cmd != nil {
		return errors.New("adaptor process already launched")
	}

	cmd := exec.Command(a.cfg.Argv[0], a.cfg.Argv[1:]...)
	cmd.Dir = a.cfg.Dir
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), a.dataEnv()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open adaptor stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open adaptor stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch adaptor %q: %w", a.cfg.Argv[0], err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stdout = bufio.NewReader(stdout)
	a.logger.Info("adaptor process launched", "argv", a.cfg.Argv, "pid", cmd.Process.Pid)
	return nil
}

func (a *CommandAdaptor) Run(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if a.cmd == nil {
		return nil, errors.New("adaptor process is not running")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	line, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode run payload: %w", err)
	}
	if _, err := a.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write run payload: %w", err)
	}

	type readResult struct {
		line string
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		out, readErr := a.stdout.ReadString('\n')
		resultCh <- readResult{line: out, err: readErr}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil, errors.New("adaptor process exited mid-run")
			}
			return nil, fmt.Errorf("read run result: %w", res.err)
		}
		return parseResultLine(res.line), nil
	}
}

func (a *CommandAdaptor) Stop(ctx context.Context) error {
	if a.cmd == nil {
		return nil
	}
	_ = a.stdin.Close()

	waitDone := make(chan error, 1)
	go func() { waitDone <- a.cmd.Wait() }()

	select {
	case err := <-waitDone:
		a.cmd = nil
		if err != nil {
			return fmt.Errorf("adaptor process exited: %w", err)
		}
		return nil
	case <-time.After(a.cfg.StopTimeout):
	case <-ctx.Done():
	}

	_ = a.cmd.Process.Kill()
	<-waitDone
	a.cmd = nil
	return fmt.Errorf("adaptor process did not exit within %s; killed", a.cfg.StopTimeout)
}

func (a *CommandAdaptor) Cleanup(ctx context.Context) error {
	if a.cmd == nil {
		return nil
	}
	// Stop did not run or failed part-way; leaking the process is worse
	// than a second error.
	_ = a.cmd.Process.Kill()
	_, _ = a.cmd.Process.Wait()
	a.cmd = nil
	return nil
}

func (a *CommandAdaptor) dataEnv() []string {
	env := make([]string, 0, 2)
	if b, err := json.Marshal(orEmpty(a.initData)); err == nil {
		env = append(env, "ADAPTORD_INIT_DATA="+string(b))
	}
	if b, err := json.Marshal(orEmpty(a.pathMapping)); err == nil {
		env = append(env, "ADAPTORD_PATH_MAPPING="+string(b))
	}
	return env
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func parseResultLine(line string) map[string]any {
	trimmed := strings.TrimSpace(line)
	var result map[string]any
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return result
	}
	return map[string]any{"output": trimmed}
}
