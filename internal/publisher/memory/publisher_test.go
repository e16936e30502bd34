package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecords(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "progress", map[string]int{"n": 1})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	require.Len(t, p.Messages(), 1)
	require.Equal(t, "progress", p.Messages()[0].Topic)

	p.Err = errors.New("down")
	_, err = p.Publish(context.Background(), "progress", nil)
	require.Error(t, err)
	require.Len(t, p.Messages(), 1)
}
