package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Endpoint is the platform-specific address of the control channel. The
// backend writes it to a connection descriptor file before listening and it
// stays immutable for the backend's lifetime.
type Endpoint struct {
	Network string `json:"network"`
	Address string `json:"address"`
}

var ErrNoConnectionFile = errors.New("connection file does not exist")

// ResolveConnectionFile makes a relative descriptor path absolute against the
// current working directory. Backend and frontend may be launched from
// different directories, so this must happen in the invoking process.
func ResolveConnectionFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("connection file path is empty")
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve connection file %q: %w", path, err)
	}
	return abs, nil
}

// WriteConnectionFile persists the endpoint descriptor for frontends to read.
func WriteConnectionFile(path string, ep Endpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ensure connection file dir: %w", err)
	}
	body, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode endpoint: %w", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return fmt.Errorf("write connection file %q: %w", path, err)
	}
	return nil
}

// ReadConnectionFile loads the endpoint a running backend advertised.
func ReadConnectionFile(path string) (Endpoint, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrNoConnectionFile, path)
		}
		return Endpoint{}, fmt.Errorf("read connection file %q: %w", path, err)
	}
	var ep Endpoint
	if err := json.Unmarshal(body, &ep); err != nil {
		return Endpoint{}, fmt.Errorf("decode connection file %q: %w", path, err)
	}
	if ep.Network == "" || ep.Address == "" {
		return Endpoint{}, fmt.Errorf("connection file %q has incomplete endpoint", path)
	}
	return ep, nil
}
