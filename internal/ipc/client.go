package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Send opens one connection, writes one framed request, and blocks for the
// framed response, all under a single deadline.
func Send(ctx context.Context, ep Endpoint, req Request, timeout time.Duration, limit uint32) (Response, error) {
	conn, err := dialEndpoint(ctx, ep, timeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := WriteMessage(conn, req, limit); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	var resp Response
	if err := ReadMessage(conn, &resp, limit); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Probe checks whether a responsive backend is currently listening.
func Probe(ctx context.Context, ep Endpoint, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, ep, Request{Command: CommandStatus}, timeout, DefaultFrameLimit)
	if err == nil {
		return true, nil
	}
	if isEndpointMissing(err) || isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe endpoint: %w", err)
}

// IsTimeout reports whether an exchange failed by exceeding its deadline
// rather than by an explicit error response. Callers treat this as a
// distinct, retriable condition.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isEndpointMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
