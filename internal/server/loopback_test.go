package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kvslab/kvs/internal/client"
	"github.com/kvslab/kvs/internal/engine"
	"github.com/kvslab/kvs/internal/pool"
)

func startLoopbackServer(t *testing.T) string {
	t.Helper()
	e, err := engine.OpenLogEngine(t.TempDir(), nil, nil)
	require.NoError(t, err)

	workers := pool.New(4, nil, nil)
	s, err := New("127.0.0.1:0", e, workers, nil)
	require.NoError(t, err)

	go func() { _ = s.Serve() }()
	t.Cleanup(func() {
		_ = s.Close()
		workers.Shutdown()
		_ = e.Close()
	})
	return s.Addr()
}

func TestLoopbackSetGetRemove(t *testing.T) {
	addr := startLoopbackServer(t)

	c, err := client.Connect(addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Set("key1", "value1")
	require.NoError(t, err)
	require.True(t, reply.IsOK())

	reply, err = c.Get("key1")
	require.NoError(t, err)
	require.True(t, reply.IsOK())
	require.Equal(t, "value1", reply.Body)

	reply, err = c.Remove("key1")
	require.NoError(t, err)
	require.True(t, reply.IsOK())

	reply, err = c.Get("key1")
	require.NoError(t, err)
	require.False(t, reply.IsOK())
	require.Equal(t, "Key not found", reply.Message)
}

func TestLoopbackRemoveMissingKeyReportsError(t *testing.T) {
	addr := startLoopbackServer(t)

	c, err := client.Connect(addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Remove("nope")
	require.NoError(t, err)
	require.False(t, reply.IsOK())
	require.Equal(t, "Key not found", reply.Message)
}

// TestLoopbackConcurrentClientsAreLinearizable exercises spec.md §8
// property 6: concurrent clients each performing a set-then-get cycle
// on disjoint keys always read back their own latest write, never a
// value written by another client.
func TestLoopbackConcurrentClientsAreLinearizable(t *testing.T) {
	addr := startLoopbackServer(t)

	const clients = 8
	const itersPerClient = 25

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c, err := client.Connect(addr, time.Second)
			require.NoError(t, err)
			defer c.Close()

			key := string(rune('A' + id))
			for j := 0; j < itersPerClient; j++ {
				value := key + string(rune('0'+j%10))
				reply, err := c.Set(key, value)
				require.NoError(t, err)
				require.True(t, reply.IsOK())

				reply, err = c.Get(key)
				require.NoError(t, err)
				require.True(t, reply.IsOK())
				require.Equal(t, value, reply.Body)
			}
		}(i)
	}
	wg.Wait()
}
