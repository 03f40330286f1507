package documents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "BF/a1/id.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Upload(ctx, "BF/a1/id.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	ok, err = s.Exists(ctx, "BF/a1/id.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "BF/a1/id.pdf"))
	assert.ErrorIs(t, s.Delete(ctx, "BF/a1/id.pdf"), ErrNotExist)
}
