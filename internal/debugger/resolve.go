package debugger

import (
	"fmt"
	"strings"

	"github.com/danmuck/scopectl/internal/protocol/session"
)

// ChangeRuntime selects a frame of the focused window by path. An empty path
// selects the top frame; "a.b" descends through nested frames. On failure the
// active runtime is left unchanged.
func (d *Debugger) ChangeRuntime(path string) (ActiveRuntime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	wid := d.windows.ActiveWindowID()
	info, err := d.resolvePath(wid, path)
	if err != nil {
		return ActiveRuntime{}, err
	}
	return d.setActiveLocked(info), nil
}

// ChangeRuntimeIndex selects the i-th runtime of the focused window in
// registry order.
func (d *Debugger) ChangeRuntimeIndex(i int) (ActiveRuntime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	runtimes := d.registry.AllForWindow(d.windows.ActiveWindowID())
	if i < 0 || i >= len(runtimes) {
		return ActiveRuntime{}, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNoSuchFrame, i, len(runtimes))
	}
	return d.setActiveLocked(runtimes[i]), nil
}

func (d *Debugger) resolvePath(windowID uint32, path string) (session.RuntimeInfo, error) {
	if path == "" {
		info, ok := d.registry.FindTopFrame(windowID)
		if !ok {
			return session.RuntimeInfo{}, fmt.Errorf("%w: window %d has no top frame", ErrNoSuchFrame, windowID)
		}
		return info, nil
	}
	var found session.RuntimeInfo
	current := TopFramePath
	for _, step := range strings.Split(path, ".") {
		if step == "" {
			return session.RuntimeInfo{}, fmt.Errorf("%w: %q has an empty segment", ErrNoSuchFrame, path)
		}
		prefix := current + "/" + step
		info, ok := d.registry.FindByFramePathPrefix(windowID, prefix)
		if !ok {
			return session.RuntimeInfo{}, fmt.Errorf("%w: %q (no frame under %q)", ErrNoSuchFrame, path, prefix)
		}
		found = info
		current = info.FramePath
	}
	return found, nil
}
