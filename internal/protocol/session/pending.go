package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/scopectl/internal/protocol/schema"
)

// Reply is what the read loop hands back to a waiting Send.
type Reply struct {
	Payload []byte
	IsError bool
	Err     error
}

// PendingCall tracks one request awaiting its tagged response.
type PendingCall struct {
	Tag      uint64
	Command  schema.Command
	QueuedAt time.Time
	Deadline time.Time
}

type pendingEntry struct {
	call PendingCall
	ch   chan Reply
}

// PendingTable stores in-flight requests by tag. A tag that is not present
// when its response arrives has been abandoned and the response is dropped.
type PendingTable struct {
	mu    sync.RWMutex
	items map[uint64]pendingEntry
}

func NewPendingTable() *PendingTable {
	return &PendingTable{
		items: make(map[uint64]pendingEntry),
	}
}

// Register adds call and returns the channel its reply is delivered on.
func (p *PendingTable) Register(call PendingCall) <-chan Reply {
	ch := make(chan Reply, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[call.Tag] = pendingEntry{call: call, ch: ch}
	return ch
}

// Resolve delivers reply to the caller waiting on tag and removes it.
func (p *PendingTable) Resolve(tag uint64, reply Reply) bool {
	p.mu.Lock()
	entry, ok := p.items[tag]
	if ok {
		delete(p.items, tag)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	entry.ch <- reply
	return true
}

// Abandon forgets tag without delivering anything.
func (p *PendingTable) Abandon(tag uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, tag)
}

// FailAll resolves every pending call with err.
func (p *PendingTable) FailAll(err error) int {
	p.mu.Lock()
	items := p.items
	p.items = make(map[uint64]pendingEntry)
	p.mu.Unlock()
	for _, entry := range items {
		entry.ch <- Reply{Err: err}
	}
	return len(items)
}

func (p *PendingTable) Get(tag uint64) (PendingCall, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.items[tag]
	return entry.call, ok
}

func (p *PendingTable) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

func (p *PendingTable) List() []PendingCall {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PendingCall, 0, len(p.items))
	for _, entry := range p.items {
		out = append(out, entry.call)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tag < out[j].Tag
	})
	return out
}
