package session

import (
	"bytes"
	"fmt"

	"github.com/danmuck/scopectl/internal/protocol/frame"
	"github.com/danmuck/scopectl/internal/protocol/schema"
)

// Event is one host-pushed notification. Payload is decoded by the consumer
// with the codec named by Command's binding.
type Event struct {
	Command schema.Command
	Payload []byte
}

// EncodeCommandFrame builds the request frame for cmd.
func EncodeCommandFrame(tag uint64, cmd schema.Command, payload []byte) ([]byte, error) {
	b, ok := cmd.Bind()
	if !ok || b.Event {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return encodeFrame(frame.Header{
		Tag:     tag,
		Service: uint16(b.Service),
		Command: b.ID,
	}, payload)
}

// EncodeResponseFrame builds the host reply for a request carrying tag.
func EncodeResponseFrame(tag uint64, cmd schema.Command, payload []byte, isError bool) ([]byte, error) {
	b, ok := cmd.Bind()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	flags := frame.FlagIsResponse
	if isError {
		flags |= frame.FlagIsError
	}
	return encodeFrame(frame.Header{
		Tag:     tag,
		Service: uint16(b.Service),
		Command: b.ID,
		Flags:   flags,
	}, payload)
}

// EncodeEventFrame builds a pushed event frame from msg.
func EncodeEventFrame(cmd schema.Command, msg Message) ([]byte, error) {
	b, ok := cmd.Bind()
	if !ok || !b.Event {
		return nil, fmt.Errorf("%w: %s is not an event", ErrUnknownCommand, cmd)
	}
	if msg.Kind() != b.Response {
		return nil, fmt.Errorf("%w: %s carries kind %d", ErrMalformedPayload, cmd, b.Response)
	}
	payload, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	return encodeFrame(frame.Header{
		Service: uint16(b.Service),
		Command: b.ID,
		Flags:   frame.FlagIsEvent,
	}, payload)
}

// DecodeEventFrame maps an event frame back to its Command.
func DecodeEventFrame(f frame.Frame) (Event, error) {
	if !f.Header.IsEvent() {
		return Event{}, fmt.Errorf("%w: frame is not an event", ErrMalformedPayload)
	}
	cmd, ok := schema.Lookup(schema.Service(f.Header.Service), f.Header.Command)
	if !ok {
		return Event{}, fmt.Errorf("%w: service=%d command=%d", ErrUnknownCommand, f.Header.Service, f.Header.Command)
	}
	if b, _ := cmd.Bind(); !b.Event {
		return Event{}, fmt.Errorf("%w: %s is not an event", ErrUnknownCommand, cmd)
	}
	return Event{Command: cmd, Payload: f.Payload}, nil
}

func encodeFrame(h frame.Header, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, frame.Frame{Header: h, Payload: payload}, frame.DefaultLimits()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
