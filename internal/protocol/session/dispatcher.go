package session

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/scopectl/internal/protocol/schema"
)

var (
	ErrNoResponse     = errors.New("session: no response")
	ErrCommandFailed  = errors.New("session: command failed")
	ErrConnClosed     = errors.New("session: connection closed")
	ErrUnknownCommand = errors.New("session: unknown command")
)

// Dispatcher sends one command and waits for its response payload.
//
// A timeout yields ErrNoResponse. An error frame from the host yields
// ErrCommandFailed wrapping the host message. A response that arrives after
// its caller gave up is discarded and never delivered to a later call.
type Dispatcher interface {
	Send(ctx context.Context, cmd schema.Command, payload []byte, timeout time.Duration) ([]byte, error)
}
