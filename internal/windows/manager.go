// Package windows tracks browser windows reported by the window-manager
// service and which one currently has focus.
package windows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scopectl/internal/logging"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/rs/zerolog"
)

var ErrDecode = errors.New("windows: decode")

// Manager stores windows by id. Only user-opened windows (opener id 0) are
// expected to be added; popups are filtered by the caller.
type Manager struct {
	dispatcher session.Dispatcher
	timeout    time.Duration
	log        zerolog.Logger

	mu      sync.RWMutex
	windows map[uint32]session.WindowInfo
	active  atomic.Uint32
}

// NewManager creates an empty manager. timeout bounds each window-manager
// command; zero lets the dispatcher pick its default.
func NewManager(d session.Dispatcher, timeout time.Duration) *Manager {
	return &Manager{
		dispatcher: d,
		timeout:    timeout,
		log:        logging.Component("windows"),
		windows:    make(map[uint32]session.WindowInfo),
	}
}

func (m *Manager) ActiveWindowID() uint32 {
	return m.active.Load()
}

func (m *Manager) SetActive(id uint32) {
	if prev := m.active.Swap(id); prev != id {
		m.log.Debug().Uint32("window", id).Uint32("previous", prev).Msg("active window changed")
	}
}

// FilterActiveWindow asks the host which window has focus and records it.
func (m *Manager) FilterActiveWindow(ctx context.Context) (uint32, error) {
	payload, err := session.Marshal(session.Default{})
	if err != nil {
		return 0, err
	}
	resp, err := m.dispatcher.Send(ctx, schema.CmdGetActiveWindow, payload, m.timeout)
	if err != nil {
		return 0, err
	}
	ref, err := session.UnmarshalWindowRef(resp)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	m.SetActive(ref.WindowID)
	return ref.WindowID, nil
}

// Refresh replaces the tracked set with the host's window list, skipping
// popups.
func (m *Manager) Refresh(ctx context.Context) error {
	payload, err := session.Marshal(session.Default{})
	if err != nil {
		return err
	}
	resp, err := m.dispatcher.Send(ctx, schema.CmdListWindows, payload, m.timeout)
	if err != nil {
		return err
	}
	list, err := session.UnmarshalWindowList(resp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	next := make(map[uint32]session.WindowInfo, len(list.Windows))
	for _, w := range list.Windows {
		if w.OpenerID != 0 {
			continue
		}
		next[w.WindowID] = w
	}
	m.mu.Lock()
	m.windows = next
	m.mu.Unlock()
	return nil
}

func (m *Manager) AddWindow(info session.WindowInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[info.WindowID] = info
}

func (m *Manager) RemoveWindow(id uint32) {
	m.mu.Lock()
	delete(m.windows, id)
	m.mu.Unlock()
	m.active.CompareAndSwap(id, 0)
}

func (m *Manager) Get(id uint32) (session.WindowInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	return w, ok
}

// List returns windows ordered by id.
func (m *Manager) List() []session.WindowInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]session.WindowInfo, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowID < out[j].WindowID
	})
	return out
}
