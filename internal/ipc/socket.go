//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrAlreadyRunning = errors.New("backend already listening on endpoint")

// DefaultEndpoint places the control socket in the user runtime dir, falling
// back to the system temp dir.
func DefaultEndpoint() Endpoint {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		dir = os.TempDir()
	}
	return Endpoint{
		Network: "unix",
		Address: filepath.Join(dir, fmt.Sprintf("adaptord-%d.sock", os.Getpid())),
	}
}

// Acquire binds the endpoint, taking over a stale socket left by a dead
// backend. A responsive listener on the same address is a hard error.
func Acquire(ctx context.Context, ep Endpoint, probeTimeout time.Duration, retries int) (net.Listener, error) {
	if ep.Network != "unix" {
		return nil, fmt.Errorf("unsupported endpoint network %q", ep.Network)
	}
	if err := os.MkdirAll(filepath.Dir(ep.Address), 0o700); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", ep.Address)
		if err == nil {
			_ = os.Chmod(ep.Address, 0o600)
			return listener, nil
		}

		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", ep.Address, err)
		}

		alive, probeErr := Probe(ctx, ep, probeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", ep.Address, probeErr)
		}

		if removeErr := os.Remove(ep.Address); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", ep.Address, removeErr)
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", ep.Address, retries)
}

// Release removes the socket file once the backend has stopped listening.
func Release(ep Endpoint) error {
	if err := os.Remove(ep.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove socket %s: %w", ep.Address, err)
	}
	return nil
}

func dialEndpoint(ctx context.Context, ep Endpoint, timeout time.Duration) (net.Conn, error) {
	if ep.Network != "unix" {
		return nil, fmt.Errorf("unsupported endpoint network %q", ep.Network)
	}
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", ep.Address)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
