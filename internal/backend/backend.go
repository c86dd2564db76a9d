// Package backend hosts the long-lived process that owns the wrapped
// application and serves the control channel.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/ipc"
	"github.com/rbright/adaptord/internal/runner"
)

const acquireRetries = 3

type Backend struct {
	logger   *slog.Logger
	cfg      config.Config
	runner   *runner.Runner
	connFile string
}

// New wires a backend around an already-constructed runner. connFile is the
// absolute path the endpoint descriptor will be advertised at.
func New(logger *slog.Logger, cfg config.Config, r *runner.Runner, connFile string) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		logger:   logger,
		cfg:      cfg,
		runner:   r,
		connFile: connFile,
	}
}

// Run acquires the control endpoint, advertises it in the connection file,
// and serves until a shutdown command or context cancellation. The endpoint
// and descriptor are released on the way out.
func (b *Backend) Run(ctx context.Context) error {
	ep := ipc.DefaultEndpoint()
	listener, err := ipc.Acquire(ctx, ep, b.cfg.RequestTimeout.Duration, acquireRetries)
	if err != nil {
		return fmt.Errorf("acquire control endpoint: %w", err)
	}

	if err := ipc.WriteConnectionFile(b.connFile, ep); err != nil {
		_ = listener.Close()
		_ = ipc.Release(ep)
		return err
	}
	b.logger.Info("backend listening", "network", ep.Network, "address", ep.Address, "connection_file", b.connFile)

	srv := ipc.NewServer(listener, newHandler(b.logger, b.runner), ipc.ServerOptions{
		Logger:     b.logger,
		FrameLimit: b.cfg.FrameLimitBytes,
		Grace:      b.cfg.ShutdownGrace.Duration,
	})

	serveErr := srv.Serve(ctx)
	shutdownErr := srv.Shutdown()

	if err := os.Remove(b.connFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.logger.Warn("remove connection file failed", "error", err.Error())
	}
	if err := ipc.Release(ep); err != nil {
		b.logger.Warn("release endpoint failed", "error", err.Error())
	}
	if err := b.runner.Cleanup(context.WithoutCancel(ctx)); err != nil {
		b.logger.Error("cleanup adaptor failed", "error", err.Error())
	}

	b.logger.Info("backend stopped")
	return errors.Join(serveErr, shutdownErr)
}
