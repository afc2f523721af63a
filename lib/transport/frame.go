// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize caps a single inbound or outbound frame. 1 MiB is
// generous for control documents, which are small JSON objects.
const maxFrameSize = 1024 * 1024

// writeFrame writes one length-prefixed frame: a 4-byte big-endian
// length followed by the payload. A zero-length payload is a legal
// frame.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(payload), maxFrameSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame. Returns io.EOF unwrapped
// when the connection closes cleanly between frames.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", length, maxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading %d-byte frame body: %w", length, err)
	}
	return payload, nil
}
