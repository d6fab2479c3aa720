package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltEngineSetGetRemove(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenBoltEngine(dir, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Set("name", "zero"))
	v, ok, err := e.Get("name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "zero", v)

	require.NoError(t, e.Remove("name"))
	_, ok, err = e.Get("name")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, e.Remove("name"), ErrKeyNotFound)
}

func TestBoltEngineExistsAt(t *testing.T) {
	dir := t.TempDir()
	require.False(t, KindBolt.ExistsAt(dir))

	e, err := OpenBoltEngine(dir, nil)
	require.NoError(t, err)
	defer e.Close()

	require.True(t, KindBolt.ExistsAt(dir))
	require.False(t, KindLog.ExistsAt(dir))
}
