package protocol

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// Frame is one wire-level packet: an id, a compression flag, and a payload.
type Frame struct {
	ID         uint16
	Compressed bool
	Payload    []byte
}

// ReadFrame reads a single framed packet: u16 id | u8 compressed | u32 len |
// payload. If Compressed, the payload on the wire is raw-deflate compressed
// and is inflated before being returned.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [7]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	id := binary.LittleEndian.Uint16(header[0:2])
	compressed := header[2] != 0
	length := binary.LittleEndian.Uint32(header[3:7])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}

	if compressed {
		inflated, err := inflate(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("inflate frame payload: %w", err)
		}
		payload = inflated
	}

	return Frame{ID: id, Compressed: compressed, Payload: payload}, nil
}

// WriteFrame writes a framed packet. Compressed frames are deflated before
// the length prefix is computed, so the length on the wire always reflects
// the bytes actually following it.
func WriteFrame(w io.Writer, f Frame) error {
	payload := f.Payload
	if f.Compressed {
		deflated, err := deflate(payload)
		if err != nil {
			return fmt.Errorf("deflate frame payload: %w", err)
		}
		payload = deflated
	}

	var header [7]byte
	binary.LittleEndian.PutUint16(header[0:2], f.ID)
	if f.Compressed {
		header[2] = 1
	}
	binary.LittleEndian.PutUint32(header[3:7], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(b); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(b []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(b))
	defer fr.Close()
	return io.ReadAll(fr)
}
