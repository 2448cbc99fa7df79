package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClientRejectsBadInput(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "", "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "http://nope", "")
	assert.Error(t, err)
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "", PoolOptions{})
	assert.Error(t, err)
}
