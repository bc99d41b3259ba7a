package protocol

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the big-endian length prefix.
	HeaderSize = 4
	// MaxPayload is the largest payload length accepted on the wire.
	MaxPayload = 999_999
)

var (
	// ErrZeroLength is returned for a frame that declares an empty payload.
	ErrZeroLength = errors.New("frame declares zero length")
	// ErrFrameTooLarge is returned for a frame whose payload exceeds MaxPayload.
	ErrFrameTooLarge = errors.New("frame exceeds maximum length")
)

// IsProtocolViolation reports whether err means the stream can no longer be
// trusted and the connection must be closed.
func IsProtocolViolation(err error) bool {
	switch errors.Cause(err) {
	case ErrZeroLength, ErrFrameTooLarge:
		return true
	}
	return false
}

// Encode serializes e and prepends the length header.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event")
	}
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode parses a single frame payload into an Event.
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		if errors.Cause(err) != ErrMalformedEvent {
			err = errors.Wrap(ErrMalformedEvent, err.Error())
		}
		return Event{}, err
	}
	return e, nil
}

// WriteFrame writes e as one frame using a single Write call so that frames
// from concurrent writers holding the same lock never interleave.
func WriteFrame(w io.Writer, e Event) error {
	buf, err := Encode(e)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame payload. A clean close before the header yields
// io.EOF; a close in the middle of a frame yields io.ErrUnexpectedEOF.
// Length violations are returned before any payload byte is read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, ErrZeroLength
	}
	if n > MaxPayload {
		return nil, errors.Wrapf(ErrFrameTooLarge, "declared %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
