package memory

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder(t *testing.T) {
	for _, name := range []string{"", "chargram", DefaultEmbeddingModel} {
		e, err := NewEmbedder(name)
		require.NoError(t, err)
		assert.Equal(t, DefaultEmbeddingModel, e.ModelID())
		assert.Len(t, e.Embed("hello"), 384)
	}
	h, err := NewEmbedder("hash")
	require.NoError(t, err)
	assert.Equal(t, HashEmbeddingModel, h.ModelID())
	assert.Len(t, h.Embed("hello"), 256)

	_, err = NewEmbedder("gpt-embeddings")
	assert.Error(t, err)
}

func TestEmbedder_Normalized(t *testing.T) {
	e, _ := NewEmbedder("")
	var sum float64
	for _, v := range e.Embed("Jon said his address is 123 Main St") {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	zero := e.Embed("   ")
	for _, v := range zero {
		require.Equal(t, float32(0), v)
	}
}

func TestChromemStore_SearchRanksSimilarMessages(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore("", "u1", nil)
	require.NoError(t, err)
	defer store.Close()

	empty, err := store.SearchMessages(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, empty, "an empty collection yields no hits")

	now := time.Now()
	for _, m := range []*Message{
		{ID: "m1", ThreadID: "t1", Timestamp: now, Speaker: SpeakerUser, Content: "Jon said his address is 123 Main St"},
		{ID: "m2", ThreadID: "t1", Timestamp: now, Speaker: SpeakerUser, Content: "quarterly budget review with finance"},
		{ID: "m3", ThreadID: "t1", Timestamp: now, Speaker: SpeakerAgent, Content: ""},
	} {
		require.NoError(t, store.StoreMessage(ctx, m))
	}

	hits, err := store.SearchMessages(ctx, "Jon address Main St", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "limit is clamped to the collection size and blank messages are skipped")
	assert.Equal(t, "m1", hits[0].MessageID)
	assert.Equal(t, "t1", hits[0].ThreadID)
	assert.Equal(t, SpeakerUser, hits[0].Speaker)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, now.UnixMilli(), hits[0].Timestamp.UnixMilli())
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")
	store, err := NewChromemStore(dir, "u1", nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreMessage(ctx, &Message{ID: "m1", Content: "dinner with Sarah", Timestamp: time.Now()}))

	reopened, err := NewChromemStore(dir, "u1", nil)
	require.NoError(t, err)
	hits, err := reopened.SearchMessages(ctx, "Sarah dinner", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].MessageID)
}
