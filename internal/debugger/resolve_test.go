package debugger

import (
	"testing"

	"github.com/danmuck/scopectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestChangeRuntimeByPath(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, testConfig())

	cases := []struct {
		path string
		want uint32
	}{
		{"a", 2},
		{"a.b", 3},
		{"c", 4},
		{"", 1},
	}
	for _, tc := range cases {
		active, err := h.d.ChangeRuntime(tc.path)
		require.NoError(t, err, tc.path)
		require.Equal(t, tc.want, active.ID, tc.path)
		require.Equal(t, tc.want, h.d.RuntimeID(), tc.path)
	}
}

func TestChangeRuntimeFailureLeavesActive(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, testConfig())
	_, err := h.d.ChangeRuntime("a")
	require.NoError(t, err)
	before, _ := h.d.ActiveRuntime()

	for _, path := range []string{"missing", "a.missing", "a.b.c", "c.a", "a..b", "a.", ".a", "."} {
		_, err := h.d.ChangeRuntime(path)
		require.ErrorIs(t, err, ErrNoSuchFrame, path)
		after, _ := h.d.ActiveRuntime()
		require.Equal(t, before, after, path)
	}
}

func TestChangeRuntimeEmptyPathWithoutTop(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, testConfig())
	h.fw.SetActive(99)
	_, err := h.d.ChangeRuntime("")
	require.ErrorIs(t, err, ErrNoSuchFrame)
	require.Equal(t, uint32(1), h.d.RuntimeID())
}

func TestChangeRuntimeIndex(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, testConfig())

	active, err := h.d.ChangeRuntimeIndex(2)
	require.NoError(t, err)
	require.Equal(t, uint32(3), active.ID)

	for _, i := range []int{-1, 4, 100} {
		_, err := h.d.ChangeRuntimeIndex(i)
		require.ErrorIs(t, err, ErrNoSuchFrame)
		require.Contains(t, err.Error(), "out of range")
		require.Equal(t, uint32(3), h.d.RuntimeID())
	}
}

func TestActiveGenerationMovesWithEverySwap(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, testConfig())
	first, _ := h.d.ActiveRuntime()
	second, err := h.d.ChangeRuntime("")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Greater(t, second.Generation, first.Generation)
}
