package fdtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocNeverCollides(t *testing.T) {
	tbl := New()
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		fd := tbl.Alloc()
		require.Falsef(t, seen[fd], "fd %d allocated twice", fd)
		seen[fd] = true
	}
}

func TestReleaseRemovesFromLiveSet(t *testing.T) {
	tbl := New()
	fd := tbl.Alloc()
	require.True(t, tbl.Live(fd), "expected fd to be live after alloc")
	tbl.Release(fd)
	require.False(t, tbl.Live(fd), "expected fd to be released")
	require.Equal(t, 0, tbl.Count())
}
