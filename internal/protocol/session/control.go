package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	controlTypeEnable    = "services.enable"
	controlTypeEnableAck = "services.enable.ack"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	maxControlLine = 128 * 1024
)

var (
	ErrInvalidHandshake       = errors.New("session: invalid handshake")
	ErrHandshakeRejected      = errors.New("session: handshake rejected")
	ErrControlMessageTooLarge = errors.New("session: control message too large")
)

// EnableServices is the client->host session-start line.
type EnableServices struct {
	Client   string   `json:"client"`
	Services []string `json:"services"`
}

func (e EnableServices) Validate() error {
	if strings.TrimSpace(e.Client) == "" {
		return fmt.Errorf("%w: missing client", ErrInvalidHandshake)
	}
	if len(e.Services) == 0 {
		return fmt.Errorf("%w: missing services", ErrInvalidHandshake)
	}
	for i, name := range e.Services {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: services[%d] empty", ErrInvalidHandshake, i)
		}
	}
	return nil
}

// EnableAck is the host->client handshake response.
type EnableAck struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Services []string `json:"services,omitempty"`
}

func (a EnableAck) Validate() error {
	status := strings.TrimSpace(a.Status)
	if status != AckStatusAccepted && status != AckStatusRejected {
		return fmt.Errorf("%w: invalid ack status %q", ErrInvalidHandshake, a.Status)
	}
	return nil
}

type controlEnvelope struct {
	Type string `json:"type"`
	EnableServices
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func WriteEnableServices(w io.Writer, req EnableServices) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{
		Type:           controlTypeEnable,
		EnableServices: req,
	})
}

func ReadEnableServices(r *bufio.Reader) (EnableServices, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return EnableServices{}, err
	}
	if env.Type != controlTypeEnable {
		return EnableServices{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidHandshake, env.Type)
	}
	if err := env.EnableServices.Validate(); err != nil {
		return EnableServices{}, err
	}
	return env.EnableServices, nil
}

func WriteEnableAck(w io.Writer, ack EnableAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{
		Type:           controlTypeEnableAck,
		EnableServices: EnableServices{Services: ack.Services},
		Status:         ack.Status,
		Message:        ack.Message,
	})
}

func ReadEnableAck(r *bufio.Reader) (EnableAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return EnableAck{}, err
	}
	if env.Type != controlTypeEnableAck {
		return EnableAck{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidHandshake, env.Type)
	}
	ack := EnableAck{Status: env.Status, Message: env.Message, Services: env.Services}
	if err := ack.Validate(); err != nil {
		return EnableAck{}, err
	}
	return ack, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return controlEnvelope{}, err
	}
	if len(line) > maxControlLine {
		return controlEnvelope{}, ErrControlMessageTooLarge
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	return env, nil
}
