package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestSetGetRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Set("sync:queue", `[{"id":"1"}]`))

	value, ok, err := s.Get("sync:queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"1"}]`, value)
}

func TestGetMissingKey(t *testing.T) {
	s, _ := openTestStore(t)

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetOverwrites(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Set("k", "v1"))
	require.NoError(t, s.Set("k", "v2"))

	value, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", value)
}

func TestValuesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("offline:records:work_order", `[]`))
	require.NoError(t, s.Set("sync:queue", `[{"id":"q1"}]`))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get("sync:queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"q1"}]`, value)
}

func TestDelete(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Delete("k"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete("k"))
}

func TestClear(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Clear())

	keys, err := s.Keys("")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeysWithPrefix(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Set("offline:records:photo", "[]"))
	require.NoError(t, s.Set("offline:records:work_order", "[]"))
	require.NoError(t, s.Set("sync:queue", "[]"))

	keys, err := s.Keys("offline:")
	require.NoError(t, err)
	assert.Equal(t, []string{"offline:records:photo", "offline:records:work_order"}, keys)
}
