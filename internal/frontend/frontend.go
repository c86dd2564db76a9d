// Package frontend implements the short-lived per-invocation client that
// relays one control command to a running backend.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/ipc"
)

// ErrTimeout marks an exchange that exceeded its deadline. Distinct from an
// explicit error response: the caller may retry.
var ErrTimeout = errors.New("control request timed out")

// CommandError is an explicit failure response from the backend.
type CommandError struct {
	Command string
	State   string
	Message string
}

func (e *CommandError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("command %q failed in state %s: %s", e.Command, e.State, e.Message)
	}
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
}

// Client issues control commands against the backend advertised in a
// connection descriptor file.
type Client struct {
	logger   *slog.Logger
	cfg      config.Config
	connFile string
}

// New resolves the connection file path. A relative path is made absolute
// against the current working directory, because backend and frontend may
// be launched from different directories.
func New(logger *slog.Logger, cfg config.Config, connFile string) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := ipc.ResolveConnectionFile(connFile)
	if err != nil {
		return nil, err
	}
	return &Client{logger: logger, cfg: cfg, connFile: abs}, nil
}

// ConnectionFile returns the resolved absolute descriptor path.
func (c *Client) ConnectionFile() string {
	return c.connFile
}

// SpawnOptions controls how the backend process is launched.
type SpawnOptions struct {
	// Exe overrides the backend executable; defaults to the current binary.
	Exe string
	// Args are appended after the serve subcommand and connection file.
	Args []string
}

// SpawnBackend launches the backend serve process and blocks until it
// advertises a responsive endpoint.
func (c *Client) SpawnBackend(ctx context.Context, opts SpawnOptions) error {
	exe := opts.Exe
	if exe == "" {
		resolved, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve backend executable: %w", err)
		}
		exe = resolved
	}

	args := append([]string{"daemon", "_serve", "--connection-file", c.connFile}, opts.Args...)
	cmd := exec.Command(exe, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn backend: %w", err)
	}
	c.logger.Info("backend spawned", "pid", cmd.Process.Pid, "connection_file", c.connFile)
	go func() { _ = cmd.Wait() }()

	return c.WaitReady(ctx)
}

// WaitReady polls until the backend has written the connection file and
// answers a status probe, bounded by the configured startup timeout.
func (c *Client) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.StartupTimeout.Duration)
	for {
		ep, err := ipc.ReadConnectionFile(c.connFile)
		if err == nil {
			alive, probeErr := ipc.Probe(ctx, ep, c.cfg.RequestTimeout.Duration)
			if alive {
				return nil
			}
			if probeErr != nil {
				c.logger.Debug("backend probe inconclusive", "error", probeErr.Error())
			}
		} else if !errors.Is(err, ipc.ErrNoConnectionFile) {
			return err
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("backend not ready within %s: %w", c.cfg.StartupTimeout.Duration, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Start asks the backend to initialize the wrapped application.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.send(ctx, ipc.Request{Command: ipc.CommandStart})
	return err
}

// Run executes one unit of work and returns its result mapping.
func (c *Client) Run(ctx context.Context, payload map[string]any) (map[string]any, error) {
	resp, err := c.send(ctx, ipc.Request{Command: ipc.CommandRun, Payload: payload})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Stop asks the backend to terminate the wrapped application gracefully.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.send(ctx, ipc.Request{Command: ipc.CommandStop})
	return err
}

// Cancel interrupts whatever command is in flight on the backend.
func (c *Client) Cancel(ctx context.Context) error {
	_, err := c.send(ctx, ipc.Request{Command: ipc.CommandCancel})
	return err
}

// Status reports the backend runner's lifecycle state.
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, ipc.Request{Command: ipc.CommandStatus})
	if err != nil {
		return "", err
	}
	return resp.State, nil
}

// Shutdown asks the backend process to exit. Idempotent: a backend that is
// already gone is a success.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.send(ctx, ipc.Request{Command: ipc.CommandShutdown})
	if err == nil {
		return nil
	}
	if errors.Is(err, ipc.ErrNoConnectionFile) {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	// Connection-level failure: the backend may have exited between the
	// descriptor read and the dial.
	c.logger.Debug("shutdown exchange failed; treating backend as gone", "error", err.Error())
	return nil
}

func (c *Client) send(ctx context.Context, req ipc.Request) (ipc.Response, error) {
	ep, err := ipc.ReadConnectionFile(c.connFile)
	if err != nil {
		return ipc.Response{}, err
	}

	resp, err := ipc.Send(ctx, ep, req, c.cfg.RequestTimeout.Duration, c.cfg.FrameLimitBytes)
	if err != nil {
		if ipc.IsTimeout(err) {
			return ipc.Response{}, fmt.Errorf("command %q: %w", req.Command, ErrTimeout)
		}
		return ipc.Response{}, fmt.Errorf("command %q: %w", req.Command, err)
	}
	if !resp.OK {
		return resp, &CommandError{Command: req.Command, State: resp.State, Message: resp.Error}
	}
	return resp, nil
}
