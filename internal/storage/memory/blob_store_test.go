package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "runs/a.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/a.json", uri)

	data, ok := store.Get("runs/a.json")
	require.True(t, ok)
	require.Equal(t, "{}", string(data))

	_, ok = store.Get("missing")
	require.False(t, ok)

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
