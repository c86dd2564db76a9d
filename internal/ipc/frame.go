package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Frames are [4-byte big-endian length][body]. The prefix preserves message
// boundaries on byte-stream transports so one read cycle always yields one
// logical message.

const framePrefixLen = 4

// DefaultFrameLimit bounds per-message memory use unless config overrides it.
const DefaultFrameLimit uint32 = 1 << 20

var (
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrEmptyFrame    = errors.New("frame has empty body")
)

func WriteFrame(w io.Writer, body []byte, limit uint32) error {
	if uint32(len(body)) > limit {
		return fmt.Errorf("write frame of %d bytes: %w", len(body), ErrFrameTooLarge)
	}
	var prefix [framePrefixLen]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader, limit uint32) ([]byte, error) {
	var prefix [framePrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > limit {
		return nil, fmt.Errorf("read frame of %d bytes: %w", size, ErrFrameTooLarge)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// WriteMessage frames one JSON-encoded value.
func WriteMessage(w io.Writer, v any, limit uint32) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return WriteFrame(w, body, limit)
}

// ReadMessage reads one frame and decodes its JSON body into v.
func ReadMessage(r io.Reader, v any, limit uint32) error {
	body, err := ReadFrame(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
