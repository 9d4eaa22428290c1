package debugger

import (
	"context"
	"fmt"

	"github.com/danmuck/scopectl/internal/observability"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
)

type activeSetter interface {
	SetActive(id uint32)
}

// OnRuntimeStarted tracks a new runtime. A top frame for the focused window
// replaces every runtime of that window and becomes the active runtime in the
// same step.
func (d *Debugger) OnRuntimeStarted(info session.RuntimeInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.FramePath == TopFramePath && info.WindowID == d.windows.ActiveWindowID() {
		removed := d.registry.ReplaceWindowTop(info)
		d.setActiveLocked(info)
		d.log.Debug().Uint32("runtime", info.RuntimeID).Uint32("window", info.WindowID).Int("discarded", removed).Msg("top frame replaced")
		return
	}
	d.registry.Upsert(info)
}

// OnRuntimeStopped forgets the runtime. The active runtime is left as is until
// the next top frame replaces it.
func (d *Debugger) OnRuntimeStopped(runtimeID uint32) {
	d.registry.RemoveByID(runtimeID)
}

// OnWindowUpdated registers user-opened windows; popups are ignored.
func (d *Debugger) OnWindowUpdated(info session.WindowInfo) {
	if info.OpenerID != 0 {
		return
	}
	d.windows.AddWindow(info)
}

func (d *Debugger) OnWindowClosed(windowID uint32) {
	d.windows.RemoveWindow(windowID)
	d.registry.RemoveByWindow(windowID)
}

func (d *Debugger) OnWindowActivated(windowID uint32) {
	if s, ok := d.windows.(activeSetter); ok {
		s.SetActive(windowID)
	}
}

// Apply decodes one pushed event and dispatches it.
func (d *Debugger) Apply(ev session.Event) error {
	err := d.apply(ev)
	observability.RecordEvent(ev.Command.String(), err == nil)
	return err
}

func (d *Debugger) apply(ev session.Event) error {
	switch ev.Command {
	case schema.EvtRuntimeStarted:
		info, err := session.UnmarshalRuntimeInfo(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProtocolDecode, ev.Command, err)
		}
		d.OnRuntimeStarted(info)
	case schema.EvtRuntimeStopped:
		ref, err := session.UnmarshalRuntimeRef(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProtocolDecode, ev.Command, err)
		}
		d.OnRuntimeStopped(ref.RuntimeID)
	case schema.EvtWindowUpdated:
		info, err := session.UnmarshalWindowInfo(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProtocolDecode, ev.Command, err)
		}
		d.OnWindowUpdated(info)
	case schema.EvtWindowClosed:
		ref, err := session.UnmarshalWindowRef(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProtocolDecode, ev.Command, err)
		}
		d.OnWindowClosed(ref.WindowID)
	case schema.EvtWindowActivated:
		ref, err := session.UnmarshalWindowRef(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProtocolDecode, ev.Command, err)
		}
		d.OnWindowActivated(ref.WindowID)
	default:
		return fmt.Errorf("%w: unhandled event %s", ErrProtocolDecode, ev.Command)
	}
	return nil
}

// Pump applies events until ctx ends or the channel closes. Bad events are
// logged and skipped.
func (d *Debugger) Pump(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.Apply(ev); err != nil {
				d.log.Warn().Err(err).Str("event", ev.Command.String()).Msg("event skipped")
			}
		}
	}
}
