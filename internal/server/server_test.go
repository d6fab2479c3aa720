package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvslab/kvs/internal/command"
	"github.com/kvslab/kvs/internal/engine"
)

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	e, err := engine.OpenLogEngine(t.TempDir(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestDispatchSetGetRemove(t *testing.T) {
	s := &Server{engine: newTestEngine(t)}

	reply := s.Dispatch(command.Set("a", "1"))
	require.True(t, reply.IsOK())

	reply = s.Dispatch(command.Get("a"))
	require.True(t, reply.IsOK())
	require.Equal(t, "1", reply.Body)

	reply = s.Dispatch(command.Remove("a"))
	require.True(t, reply.IsOK())

	reply = s.Dispatch(command.Get("a"))
	require.False(t, reply.IsOK())
	require.Equal(t, "Key not found", reply.Message)
}

func TestDispatchRemoveMissingKey(t *testing.T) {
	s := &Server{engine: newTestEngine(t)}

	reply := s.Dispatch(command.Remove("ghost"))
	require.False(t, reply.IsOK())
	require.Equal(t, "Key not found", reply.Message)
}

func TestDispatchGetMissingKey(t *testing.T) {
	s := &Server{engine: newTestEngine(t)}

	reply := s.Dispatch(command.Get("ghost"))
	require.False(t, reply.IsOK())
	require.Equal(t, "Key not found", reply.Message)
}
