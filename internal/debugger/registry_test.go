package debugger

import (
	"sync"
	"testing"

	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/danmuck/scopectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRegistryFirstSeenOrder(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.Upsert(session.RuntimeInfo{RuntimeID: 9, WindowID: 1, FramePath: "_top/z"})
	r.Upsert(session.RuntimeInfo{RuntimeID: 2, WindowID: 1, FramePath: "_top"})
	r.Upsert(session.RuntimeInfo{RuntimeID: 9, WindowID: 1, FramePath: "_top/z2"})

	all := r.AllForWindow(1)
	require.Len(t, all, 2)
	require.Equal(t, uint32(9), all[0].RuntimeID)
	require.Equal(t, "_top/z2", all[0].FramePath)

	top, ok := r.FindTopFrame(1)
	require.True(t, ok)
	require.Equal(t, uint32(2), top.RuntimeID)

	got, ok := r.FindByFramePathPrefix(1, "_top/z")
	require.True(t, ok)
	require.Equal(t, uint32(9), got.RuntimeID)
	_, ok = r.FindByFramePathPrefix(2, "_top")
	require.False(t, ok)
}

func TestRegistryMoveBetweenWindows(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.Upsert(session.RuntimeInfo{RuntimeID: 1, WindowID: 1, FramePath: "_top"})
	r.Upsert(session.RuntimeInfo{RuntimeID: 1, WindowID: 2, FramePath: "_top"})
	require.Empty(t, r.AllForWindow(1))
	require.Len(t, r.AllForWindow(2), 1)
	require.Equal(t, 1, r.Len())
}

func TestRegistryRemoval(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.UpsertAll(defaultRuntimes())
	require.True(t, r.RemoveByID(2))
	require.False(t, r.RemoveByID(2))
	require.Equal(t, 3, r.RemoveByWindow(1))
	require.Equal(t, 0, r.RemoveByWindow(1))
	require.Equal(t, []session.RuntimeInfo{{RuntimeID: 10, WindowID: 2, FramePath: "_top"}}, r.List())
}

func TestRegistryReplaceAllReconciles(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.UpsertAll(defaultRuntimes())
	r.Upsert(session.RuntimeInfo{RuntimeID: 20, WindowID: 2, FramePath: "_top"})

	removed := r.ReplaceAll([]session.RuntimeInfo{
		{RuntimeID: 4, WindowID: 1, FramePath: "_top/c"},
		{RuntimeID: 1, WindowID: 1, FramePath: "_top"},
		{RuntimeID: 20, WindowID: 2, FramePath: "_top"},
		{RuntimeID: 30, WindowID: 3, FramePath: "_top"},
	})
	require.Equal(t, 3, removed)
	require.Equal(t, 4, r.Len())

	window1 := r.AllForWindow(1)
	require.Len(t, window1, 2)
	require.Equal(t, uint32(1), window1[0].RuntimeID)
	require.Equal(t, uint32(4), window1[1].RuntimeID)

	require.Len(t, r.AllForWindow(2), 1)
	top, ok := r.FindTopFrame(2)
	require.True(t, ok)
	require.Equal(t, uint32(20), top.RuntimeID)

	require.Equal(t, 4, r.ReplaceAll(nil))
	require.Empty(t, r.List())
}

func TestRegistryInvariantsHold(t *testing.T) {
	testlog.Start(t)
	paths := []string{"_top", "_top/a", "_top/a/b", "_top/c"}
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			info := session.RuntimeInfo{
				RuntimeID: uint32(rapid.IntRange(1, 12).Draw(t, "runtime")),
				WindowID:  uint32(rapid.IntRange(1, 3).Draw(t, "window")),
				FramePath: rapid.SampledFrom(paths).Draw(t, "path"),
			}
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				r.Upsert(info)
			case 1:
				r.RemoveByID(info.RuntimeID)
			case 2:
				r.RemoveByWindow(info.WindowID)
			case 3:
				info.FramePath = TopFramePath
				r.ReplaceWindowTop(info)
				all := r.AllForWindow(info.WindowID)
				if len(all) != 1 || all[0] != info {
					t.Fatalf("replace left window %d as %+v", info.WindowID, all)
				}
			}

			total := 0
			seen := make(map[uint32]bool)
			for wid := uint32(1); wid <= 3; wid++ {
				for _, rt := range r.AllForWindow(wid) {
					if rt.WindowID != wid {
						t.Fatalf("runtime %d indexed under window %d but belongs to %d", rt.RuntimeID, wid, rt.WindowID)
					}
					if seen[rt.RuntimeID] {
						t.Fatalf("runtime %d indexed twice", rt.RuntimeID)
					}
					seen[rt.RuntimeID] = true
					got, ok := r.Get(rt.RuntimeID)
					if !ok || got != rt {
						t.Fatalf("index and store disagree for %d", rt.RuntimeID)
					}
					total++
				}
				if top, ok := r.FindTopFrame(wid); ok && (top.WindowID != wid || top.FramePath != TopFramePath) {
					t.Fatalf("bad top frame %+v for window %d", top, wid)
				}
			}
			if total != r.Len() {
				t.Fatalf("index holds %d runtimes, store %d", total, r.Len())
			}
		}
	})
}

func TestReplaceWindowTopIsAtomicForReaders(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.UpsertAll(defaultRuntimes())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	failures := make(chan string, 1)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, ok := r.FindTopFrame(1); !ok {
					select {
					case failures <- "window 1 observed without a top frame":
					default:
					}
					return
				}
			}
		}()
	}
	for i := uint32(100); i < 600; i++ {
		r.ReplaceWindowTop(session.RuntimeInfo{RuntimeID: i, WindowID: 1, FramePath: "_top"})
	}
	close(stop)
	wg.Wait()
	select {
	case msg := <-failures:
		t.Fatal(msg)
	default:
	}
	require.Equal(t, 1, len(r.AllForWindow(1)))
}
