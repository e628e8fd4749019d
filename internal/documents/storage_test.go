package documents

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	name, size, err := store.Save(strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), size)

	rc, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "hello", string(data))

	require.NoError(t, store.Remove(name))
	_, err = store.Open(name)
	require.Error(t, err)
}

func TestDiskStoreOpenIgnoresPathSegments(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	name, _, err := store.Save(strings.NewReader("x"))
	require.NoError(t, err)

	rc, err := store.Open("../../" + name)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}
