package debugger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/stretchr/testify/require"
)

type sentCall struct {
	cmd     schema.Command
	payload []byte
}

type handlerFunc func(payload []byte) ([]byte, error)

// fakeDispatcher answers commands from per-command handlers and records every
// call. Commands without a handler get an empty reply.
type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []sentCall
	handlers map[schema.Command]handlerFunc
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{handlers: make(map[schema.Command]handlerFunc)}
}

func (f *fakeDispatcher) on(cmd schema.Command, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[cmd] = h
}

func (f *fakeDispatcher) Send(_ context.Context, cmd schema.Command, payload []byte, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sentCall{cmd: cmd, payload: payload})
	h := f.handlers[cmd]
	f.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(payload)
}

func (f *fakeDispatcher) sent(cmd schema.Command) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, c := range f.calls {
		if c.cmd == cmd {
			out = append(out, c.payload)
		}
	}
	return out
}

func (f *fakeDispatcher) commands() []schema.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.Command, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.cmd)
	}
	return out
}

type fakeWindows struct {
	mu          sync.Mutex
	active      uint32
	filterTo    uint32
	filterErr   error
	filterCalls int
	added       []session.WindowInfo
	removed     []uint32
}

func (w *fakeWindows) ActiveWindowID() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *fakeWindows) FilterActiveWindow(context.Context) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filterCalls++
	if w.filterErr != nil {
		return 0, w.filterErr
	}
	w.active = w.filterTo
	return w.active, nil
}

func (w *fakeWindows) AddWindow(info session.WindowInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, info)
}

func (w *fakeWindows) RemoveWindow(id uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, id)
}

func (w *fakeWindows) SetActive(id uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = id
	w.filterTo = id
}

func marshal(t *testing.T, m session.Message) []byte {
	t.Helper()
	b, err := session.Marshal(m)
	require.NoError(t, err)
	return b
}

func reply(t *testing.T, m session.Message) handlerFunc {
	t.Helper()
	b := marshal(t, m)
	return func([]byte) ([]byte, error) { return b, nil }
}

func evalReply(t *testing.T, res session.EvalResult) handlerFunc {
	t.Helper()
	return reply(t, res)
}

func decodeEval(t *testing.T, payload []byte) session.EvalData {
	t.Helper()
	data, err := session.UnmarshalEvalData(payload)
	require.NoError(t, err)
	return data
}

// defaultRuntimes is two windows: window 1 with a top frame and nested frames,
// window 2 with only a top frame.
func defaultRuntimes() []session.RuntimeInfo {
	return []session.RuntimeInfo{
		{RuntimeID: 1, WindowID: 1, FramePath: "_top"},
		{RuntimeID: 2, WindowID: 1, FramePath: "_top/a"},
		{RuntimeID: 3, WindowID: 1, FramePath: "_top/a/b"},
		{RuntimeID: 4, WindowID: 1, FramePath: "_top/c"},
		{RuntimeID: 10, WindowID: 2, FramePath: "_top"},
	}
}

type harness struct {
	d       *Debugger
	fd      *fakeDispatcher
	fw      *fakeWindows
	sleeps  []time.Duration
	sleepMu sync.Mutex
}

func (h *harness) recordedSleeps() []time.Duration {
	h.sleepMu.Lock()
	defer h.sleepMu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

// newHarness returns an initialized debugger focused on window 1 whose
// backoff sleeps are recorded instead of waited out.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fd := newFakeDispatcher()
	fw := &fakeWindows{active: 1, filterTo: 1}
	fd.on(schema.CmdListRuntimes, reply(t, session.RuntimeList{Runtimes: defaultRuntimes()}))

	d, err := New(fd, fw, cfg)
	require.NoError(t, err)
	h := &harness{d: d, fd: fd, fw: fw}
	d.sleep = func(_ context.Context, delay time.Duration) error {
		h.sleepMu.Lock()
		defer h.sleepMu.Unlock()
		h.sleeps = append(h.sleeps, delay)
		return nil
	}
	require.NoError(t, d.Init(context.Background()))
	return h
}

func testConfig() Config {
	return Config{
		ScriptRetry:         4,
		ScriptRetryInterval: 10 * time.Millisecond,
		RetryMultiplier:     2,
		ResponseTimeout:     time.Second,
	}
}
