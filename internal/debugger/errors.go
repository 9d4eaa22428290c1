package debugger

import (
	"errors"

	"github.com/danmuck/scopectl/internal/protocol/session"
)

var (
	// ErrNoResponse is returned by the dispatcher when an attempt times out.
	ErrNoResponse = session.ErrNoResponse

	ErrProtocolDecode      = errors.New("debugger: protocol decode failed")
	ErrNoSuchFrame         = errors.New("debugger: no such frame")
	ErrScriptException     = errors.New("debugger: script exception")
	ErrUnsupportedArgument = errors.New("debugger: unsupported argument")
	ErrInternal            = errors.New("debugger: internal error")
	ErrAborted             = errors.New("debugger: evaluation aborted")
	ErrStaleObject         = errors.New("debugger: stale object reference")
	ErrNoRuntime           = errors.New("debugger: no runtime for script injection")
	ErrInvalidConfig       = errors.New("debugger: invalid config")
)

// ScriptError carries the exception text of a script that threw.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	if e.Message == "" {
		return ErrScriptException.Error()
	}
	return ErrScriptException.Error() + ": " + e.Message
}

func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptException
}
