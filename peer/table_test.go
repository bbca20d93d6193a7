package peer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AddAndLookup(t *testing.T) {
	tbl := NewTable("self")
	require.NoError(t, tbl.Add("b", "10.0.0.2:3000"))
	require.NoError(t, tbl.Add("a", "10.0.0.1:3000"))

	addr, ok := tbl.Address("a")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:3000", addr)
	assert.True(t, tbl.Has("b"))
	assert.False(t, tbl.Has("c"))
	assert.Equal(t, []string{"a", "b"}, tbl.IDs())
	assert.Equal(t, 2, tbl.Len())
	assert.ErrorIs(t, tbl.Add("self", "10.0.0.9:3000"), ErrSelfPeer)
}

func TestTable_AddRejected(t *testing.T) {
	tbl := NewTable("self")

	tests := []struct {
		name    string
		id      string
		address string
		wantErr error
	}{
		{"self", "self", "127.0.0.1:1", ErrSelfPeer},
		{"empty id", "", "127.0.0.1:1", ErrEmptyPeer},
		{"empty address", "x", "", ErrEmptyPeer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tbl.Add(tt.id, tt.address), tt.wantErr)
		})
	}
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_AddOverwrites(t *testing.T) {
	tbl := NewTable("self")
	require.NoError(t, tbl.Add("a", "old:1"))
	require.NoError(t, tbl.Add("a", "new:1"))
	addr, _ := tbl.Address("a")
	assert.Equal(t, "new:1", addr)
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_Remove(t *testing.T) {
	tbl := NewTable("self")
	require.NoError(t, tbl.Add("a", "h:1"))
	require.NoError(t, tbl.Remove("a"))
	assert.False(t, tbl.Has("a"))
	assert.ErrorIs(t, tbl.Remove("a"), ErrPeerNotFound)
}

func TestTable_SnapshotIsCopy(t *testing.T) {
	tbl := NewTable("self")
	require.NoError(t, tbl.Add("a", "h:1"))
	snap := tbl.Snapshot()
	snap["b"] = "h:2"
	assert.False(t, tbl.Has("b"))
}

func TestTable_Replace(t *testing.T) {
	tbl := NewTable("self")
	require.NoError(t, tbl.Add("old", "h:0"))

	tbl.Replace(map[string]string{"a": "h:1", "self": "h:9", "": "h:2", "b": ""})

	assert.Equal(t, []string{"a"}, tbl.IDs())
}

func TestTable_Concurrent(t *testing.T) {
	tbl := NewTable("self")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			assert.NoError(t, tbl.Add(id, "h:1"))
			_ = tbl.IDs()
			_ = tbl.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, tbl.Len())
}
