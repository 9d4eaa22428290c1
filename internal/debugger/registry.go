package debugger

import (
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/scopectl/internal/observability"
	"github.com/danmuck/scopectl/internal/protocol/session"
)

// TopFramePath is the frame path of a window's main document.
const TopFramePath = "_top"

// Registry stores known runtimes by runtime id with a per-window index kept in
// first-seen order.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uint32]session.RuntimeInfo
	byWindow map[uint32][]uint32
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[uint32]session.RuntimeInfo),
		byWindow: make(map[uint32][]uint32),
	}
}

// Upsert records info. A known runtime keeps its position unless it moved to
// another window.
func (r *Registry) Upsert(info session.RuntimeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(info)
	r.publishLocked()
}

// UpsertAll records every runtime in one step.
func (r *Registry) UpsertAll(list []session.RuntimeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range list {
		r.upsertLocked(info)
	}
	r.publishLocked()
}

// ReplaceAll reconciles the registry with a full runtime listing: runtimes
// missing from list are dropped, survivors keep their position and new ones
// are appended. It returns how many runtimes were dropped.
func (r *Registry) ReplaceAll(list []session.RuntimeInfo) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := make(map[uint32]struct{}, len(list))
	for _, info := range list {
		keep[info.RuntimeID] = struct{}{}
	}
	var removed int
	for id, info := range r.byID {
		if _, ok := keep[id]; !ok {
			r.removeIDLocked(info)
			removed++
		}
	}
	for _, info := range list {
		r.upsertLocked(info)
	}
	r.publishLocked()
	return removed
}

// ReplaceWindowTop discards every runtime of info's window and installs info.
// Readers never observe the window half cleared.
func (r *Registry) ReplaceWindowTop(info session.RuntimeInfo) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.removeWindowLocked(info.WindowID)
	if old, ok := r.byID[info.RuntimeID]; ok {
		r.removeIDLocked(old)
	}
	r.upsertLocked(info)
	r.publishLocked()
	return removed
}

func (r *Registry) RemoveByID(runtimeID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[runtimeID]
	if !ok {
		return false
	}
	r.removeIDLocked(info)
	r.publishLocked()
	return true
}

func (r *Registry) RemoveByWindow(windowID uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.removeWindowLocked(windowID)
	r.publishLocked()
	return n
}

func (r *Registry) Get(runtimeID uint32) (session.RuntimeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[runtimeID]
	return info, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// AllForWindow returns the window's runtimes in first-seen order.
func (r *Registry) AllForWindow(windowID uint32) []session.RuntimeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byWindow[windowID]
	out := make([]session.RuntimeInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) FindTopFrame(windowID uint32) (session.RuntimeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.byWindow[windowID] {
		if info := r.byID[id]; info.FramePath == TopFramePath {
			return info, true
		}
	}
	return session.RuntimeInfo{}, false
}

// FindByFramePathPrefix returns the first runtime of the window, in first-seen
// order, whose frame path starts with prefix.
func (r *Registry) FindByFramePathPrefix(windowID uint32, prefix string) (session.RuntimeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.byWindow[windowID] {
		if info := r.byID[id]; strings.HasPrefix(info.FramePath, prefix) {
			return info, true
		}
	}
	return session.RuntimeInfo{}, false
}

// List returns every runtime ordered by window then first-seen position.
func (r *Registry) List() []session.RuntimeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	windows := make([]uint32, 0, len(r.byWindow))
	for wid := range r.byWindow {
		windows = append(windows, wid)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })
	out := make([]session.RuntimeInfo, 0, len(r.byID))
	for _, wid := range windows {
		for _, id := range r.byWindow[wid] {
			out = append(out, r.byID[id])
		}
	}
	return out
}

func (r *Registry) upsertLocked(info session.RuntimeInfo) {
	if old, ok := r.byID[info.RuntimeID]; ok && old.WindowID != info.WindowID {
		r.removeIDLocked(old)
	}
	if _, ok := r.byID[info.RuntimeID]; !ok {
		r.byWindow[info.WindowID] = append(r.byWindow[info.WindowID], info.RuntimeID)
	}
	r.byID[info.RuntimeID] = info
}

func (r *Registry) removeIDLocked(info session.RuntimeInfo) {
	delete(r.byID, info.RuntimeID)
	ids := r.byWindow[info.WindowID]
	for i, id := range ids {
		if id == info.RuntimeID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byWindow, info.WindowID)
		return
	}
	r.byWindow[info.WindowID] = ids
}

func (r *Registry) removeWindowLocked(windowID uint32) int {
	ids := r.byWindow[windowID]
	for _, id := range ids {
		delete(r.byID, id)
	}
	delete(r.byWindow, windowID)
	return len(ids)
}

func (r *Registry) publishLocked() {
	observability.SetRuntimeCount(len(r.byID))
}
