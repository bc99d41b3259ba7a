package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	return []Event{
		PointerMove(0, 0),
		PointerMove(1, 1),
		PointerMove(0.25, 0.75),
		ButtonEvent(ButtonLeft, true, 0.5, 0.5),
		ButtonEvent(ButtonRight, false, 0.1, 0.9),
		KeyEvent(53, 0, true, 0.3, 0.3),
		KeyEvent(0, ModShift|ModCommand, false, 0.3, 0.3),
		Scroll(0, -3, 0.4, 0.6),
		Scroll(1.5, 2.25, 1, 0),
		ControlReturn(0, 0.42),
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, e := range sampleEvents() {
		frame, err := Encode(e)
		require.NoError(t, err)

		payload, err := ReadFrame(bytes.NewReader(frame))
		require.NoError(t, err)

		got, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestFrameOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	events := sampleEvents()
	errCh := make(chan error, 1)
	go func() {
		for _, e := range events {
			if err := WriteFrame(a, e); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for _, want := range events {
		payload, err := ReadFrame(b)
		require.NoError(t, err)
		got, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, <-errCh)
}

func TestReadFrameRejectsLength(t *testing.T) {
	tests := []struct {
		name string
		n    uint32
		want error
	}{
		{"zero", 0, ErrZeroLength},
		{"one million", 1_000_000, ErrFrameTooLarge},
		{"max uint32", ^uint32(0), ErrFrameTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hdr := make([]byte, HeaderSize)
			binary.BigEndian.PutUint32(hdr, tc.n)
			r := &countingReader{r: bytes.NewReader(append(hdr, []byte(`{"kind":"pointer_move"}`)...))}

			_, err := ReadFrame(r)
			assert.Equal(t, tc.want, errors.Cause(err))
			assert.True(t, IsProtocolViolation(err))
			assert.Equal(t, HeaderSize, r.n, "payload must not be read")
		})
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	frame, err := Encode(PointerMove(0.5, 0.5))
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.False(t, IsProtocolViolation(err))

	_, err = ReadFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameMaxPayloadAccepted(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(hdr, MaxPayload)
	payload, err := ReadFrame(io.MultiReader(bytes.NewReader(hdr), bytes.NewReader(make([]byte, MaxPayload))))
	require.NoError(t, err)
	assert.Len(t, payload, MaxPayload)
}

func TestEventJSONOmitsIrrelevantFields(t *testing.T) {
	data, err := json.Marshal(PointerMove(0.5, 0.25))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"pointer_move","x":0.5,"y":0.25}`, string(data))

	data, err = json.Marshal(KeyEvent(53, ModControl, true, 0, 1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"key_down","x":0,"y":1,"key_code":53,"modifier_mask":262144}`, string(data))

	data, err = json.Marshal(ButtonEvent(ButtonRight, false, 0.5, 0.5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"button_up","x":0.5,"y":0.5,"button":"right"}`, string(data))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{"kind":`},
		{"unknown kind", `{"kind":"teleport","x":0,"y":0}`},
		{"missing coordinates", `{"kind":"pointer_move"}`},
		{"out of range", `{"kind":"pointer_move","x":1.5,"y":0}`},
		{"negative", `{"kind":"pointer_move","x":0,"y":-0.1}`},
		{"key code on move", `{"kind":"pointer_move","x":0,"y":0,"key_code":4}`},
		{"scroll on key", `{"kind":"key_down","x":0,"y":0,"key_code":4,"scroll_dy":1}`},
		{"missing key code", `{"kind":"key_up","x":0,"y":0}`},
		{"missing button", `{"kind":"button_down","x":0,"y":0}`},
		{"bad button", `{"kind":"button_down","x":0,"y":0,"button":"middle"}`},
		{"button on scroll", `{"kind":"scroll","x":0,"y":0,"button":"left"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.json))
			require.Error(t, err)
			assert.Equal(t, ErrMalformedEvent, errors.Cause(err))
			assert.False(t, IsProtocolViolation(err))
		})
	}
}

func TestDecodeAcceptsNullOptionalFields(t *testing.T) {
	e, err := Decode([]byte(`{"kind":"pointer_move","x":0.5,"y":0.5,"key_code":null,"scroll_dx":null}`))
	require.NoError(t, err)
	assert.Equal(t, PointerMove(0.5, 0.5), e)
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(Event{Kind: KindPointerMove, X: 2})
	require.Error(t, err)

	_, err = Encode(Event{Kind: KindPointerMove, KeyCode: 3})
	require.Error(t, err)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
