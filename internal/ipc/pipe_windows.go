//go:build windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
)

var ErrAlreadyRunning = errors.New("backend already listening on endpoint")

const pipeBufferSize = 64 * 1024

// DefaultEndpoint names a per-process pipe in the local pipe namespace.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		Network: "pipe",
		Address: fmt.Sprintf(`\\.\pipe\adaptord-%d`, os.Getpid()),
	}
}

// Acquire creates the named pipe listener. Pipes vanish with their owning
// process, so there is no stale-endpoint takeover on this platform.
func Acquire(ctx context.Context, ep Endpoint, probeTimeout time.Duration, retries int) (net.Listener, error) {
	if ep.Network != "pipe" {
		return nil, fmt.Errorf("unsupported endpoint network %q", ep.Network)
	}
	listener, err := winio.ListenPipe(ep.Address, &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
	if err != nil {
		alive, probeErr := Probe(ctx, ep, probeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing pipe %s: %w", ep.Address, probeErr)
		}
		return nil, fmt.Errorf("listen pipe %s: %w", ep.Address, err)
	}
	return listener, nil
}

// Release is a no-op: the pipe namespace entry disappears with the listener.
func Release(ep Endpoint) error {
	return nil
}

func dialEndpoint(ctx context.Context, ep Endpoint, timeout time.Duration) (net.Conn, error) {
	if ep.Network != "pipe" {
		return nil, fmt.Errorf("unsupported endpoint network %q", ep.Network)
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return winio.DialPipeContext(dialCtx, ep.Address)
}
