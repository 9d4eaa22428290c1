package debugger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scopectl/internal/logging"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WindowManager is the window collaborator the debugger consults for focus.
type WindowManager interface {
	ActiveWindowID() uint32
	FilterActiveWindow(ctx context.Context) (uint32, error)
	AddWindow(info session.WindowInfo)
	RemoveWindow(id uint32)
}

// Config tunes evaluation retry. ScriptRetry is the total number of attempts
// per call; delays start at ScriptRetryInterval and grow by RetryMultiplier.
type Config struct {
	ScriptRetry         int
	ScriptRetryInterval time.Duration
	RetryMultiplier     float64
	ResponseTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ScriptRetry:         5,
		ScriptRetryInterval: 50 * time.Millisecond,
		RetryMultiplier:     2.0,
		ResponseTimeout:     10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.ScriptRetry < 1 {
		return fmt.Errorf("%w: script_retry must be >= 1", ErrInvalidConfig)
	}
	if c.ScriptRetryInterval <= 0 {
		return fmt.Errorf("%w: script_retry_interval must be > 0", ErrInvalidConfig)
	}
	if c.RetryMultiplier < 2 {
		return fmt.Errorf("%w: retry_multiplier must be >= 2", ErrInvalidConfig)
	}
	if c.ResponseTimeout < 0 {
		return fmt.Errorf("%w: response_timeout must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (c Config) backoff() session.BackoffConfig {
	return session.BackoffConfig{
		InitialDelay: c.ScriptRetryInterval,
		Multiplier:   c.RetryMultiplier,
	}
}

// ActiveRuntime is the runtime scripts are sent to. Generation increases on
// every swap.
type ActiveRuntime struct {
	ID         uint32
	WindowID   uint32
	FramePath  string
	Generation uint64
}

// Debugger is one ecmascript-debugger session.
type Debugger struct {
	id         string
	cfg        Config
	dispatcher session.Dispatcher
	windows    WindowManager
	registry   *Registry
	log        zerolog.Logger

	// mu serializes compound updates of registry plus active runtime.
	mu        sync.Mutex
	active    atomic.Pointer[ActiveRuntime]
	activeGen atomic.Uint64
	objectGen atomic.Uint64

	sleep func(context.Context, time.Duration) error
}

func New(d session.Dispatcher, windows WindowManager, cfg Config) (*Debugger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Debugger{
		id:         id,
		cfg:        cfg,
		dispatcher: d,
		windows:    windows,
		registry:   NewRegistry(),
		log:        logging.Component("debugger").With().Str("session", id).Logger(),
		sleep:      sleepCtx,
	}, nil
}

func (d *Debugger) SessionID() string { return d.id }

func (d *Debugger) Registry() *Registry { return d.registry }

// Init disables every stop-at trigger, loads all runtimes and selects the top
// frame of the focused window.
func (d *Debugger) Init(ctx context.Context) error {
	if _, err := d.send(ctx, schema.CmdSetConfiguration, session.Configuration{}); err != nil {
		return fmt.Errorf("debugger: set configuration: %w", err)
	}
	if d.windows.ActiveWindowID() == 0 {
		if _, err := d.windows.FilterActiveWindow(ctx); err != nil {
			return fmt.Errorf("debugger: active window: %w", err)
		}
	}

	list, err := d.listRuntimes(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	wid := d.windows.ActiveWindowID()
	top, err := d.adoptRuntimesLocked(list, wid)
	if err != nil {
		return err
	}
	d.log.Info().Uint32("runtime", top.ID).Uint32("window", wid).Int("runtimes", d.registry.Len()).Msg("debugger initialized")
	return nil
}

// RuntimeID returns the active runtime id, or 0 before one is selected.
func (d *Debugger) RuntimeID() uint32 {
	if a := d.active.Load(); a != nil {
		return a.ID
	}
	return 0
}

func (d *Debugger) ActiveRuntime() (ActiveRuntime, bool) {
	a := d.active.Load()
	if a == nil {
		return ActiveRuntime{}, false
	}
	return *a, true
}

// ListFramePaths returns the frame paths of the focused window's runtimes.
func (d *Debugger) ListFramePaths() []string {
	runtimes := d.registry.AllForWindow(d.windows.ActiveWindowID())
	out := make([]string, 0, len(runtimes))
	for _, r := range runtimes {
		out = append(out, r.FramePath)
	}
	return out
}

// CleanUpRuntimes forgets every runtime of the given windows, or of the
// focused window when none are given.
func (d *Debugger) CleanUpRuntimes(windowIDs ...uint32) int {
	if len(windowIDs) == 0 {
		windowIDs = []uint32{d.windows.ActiveWindowID()}
	}
	var n int
	for _, wid := range windowIDs {
		n += d.registry.RemoveByWindow(wid)
	}
	return n
}

// listRuntimes fetches every runtime the host knows. It runs without d.mu so
// events keep flowing while the request is in flight.
func (d *Debugger) listRuntimes(ctx context.Context) ([]session.RuntimeInfo, error) {
	resp, err := d.send(ctx, schema.CmdListRuntimes, session.RuntimeSelection{AllRuntimes: true})
	if err != nil {
		return nil, fmt.Errorf("debugger: list runtimes: %w", err)
	}
	list, err := session.UnmarshalRuntimeList(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}
	return list.Runtimes, nil
}

// adoptRuntimesLocked replaces the registry with list and makes the top frame
// of windowID active.
func (d *Debugger) adoptRuntimesLocked(list []session.RuntimeInfo, windowID uint32) (ActiveRuntime, error) {
	if dropped := d.registry.ReplaceAll(list); dropped > 0 {
		d.log.Debug().Int("dropped", dropped).Msg("runtimes gone from listing")
	}
	top, ok := d.registry.FindTopFrame(windowID)
	if !ok {
		return ActiveRuntime{}, fmt.Errorf("%w: window %d has no top frame", ErrNoRuntime, windowID)
	}
	return d.setActiveLocked(top), nil
}

func (d *Debugger) setActiveLocked(info session.RuntimeInfo) ActiveRuntime {
	next := &ActiveRuntime{
		ID:         info.RuntimeID,
		WindowID:   info.WindowID,
		FramePath:  info.FramePath,
		Generation: d.activeGen.Add(1),
	}
	prev := d.active.Swap(next)
	ev := d.log.Debug().Uint32("runtime", next.ID).Str("frame", next.FramePath)
	if prev != nil {
		ev = ev.Uint32("previous", prev.ID)
	}
	ev.Msg("active runtime changed")
	return *next
}

func (d *Debugger) send(ctx context.Context, cmd schema.Command, msg session.Message) ([]byte, error) {
	payload, err := session.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return d.dispatcher.Send(ctx, cmd, payload, d.cfg.ResponseTimeout)
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
