package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circles-service/internal/models"
)

func TestReactionAddIsIdempotent(t *testing.T) {
	agg := NewReactionAggregate()

	require.True(t, agg.Add("m1", "👍", "u1"))
	require.False(t, agg.Add("m1", "👍", "u1"))
	assert.Equal(t, []string{"u1"}, agg.Reactors("m1", "👍"))
}

func TestReactionRemoveDropsEmptyEmojiKey(t *testing.T) {
	agg := NewReactionAggregate()
	agg.Add("m1", "👍", "u1")
	agg.Add("m1", "👍", "u2")

	require.True(t, agg.Remove("m1", "👍", "u1"))
	assert.Equal(t, []string{"u2"}, agg.Reactors("m1", "👍"))

	require.True(t, agg.Remove("m1", "👍", "u2"))
	assert.Empty(t, agg.Emojis("m1"))
}

func TestReactionRemoveAbsentIsNoop(t *testing.T) {
	agg := NewReactionAggregate()
	agg.Add("m1", "👍", "u1")

	require.False(t, agg.Remove("m1", "👍", "u2"))
	require.False(t, agg.Remove("m1", "🎉", "u1"))
	require.False(t, agg.Remove("m2", "👍", "u1"))
	assert.Equal(t, []string{"u1"}, agg.Reactors("m1", "👍"))
}

func TestReactionSeed(t *testing.T) {
	agg := NewReactionAggregate()
	agg.Seed([]models.Reaction{
		{MessageID: "m1", UserID: "u1", Emoji: "👍"},
		{MessageID: "m1", UserID: "u2", Emoji: "👍"},
		{MessageID: "m1", UserID: "u1", Emoji: "👍"},
		{MessageID: "m2", UserID: "u1", Emoji: "🎉"},
	})

	assert.Equal(t, []string{"u1", "u2"}, agg.Reactors("m1", "👍"))
	assert.True(t, agg.HasReacted("m2", "🎉", "u1"))
}

func TestReadsExcludeAuthor(t *testing.T) {
	agg := NewReadAggregate()

	require.False(t, agg.AddReceipt("m1", "author", "author"))
	require.True(t, agg.AddReceipt("m1", "reader", "author"))
	require.False(t, agg.AddReceipt("m1", "reader", "author"))
	assert.Equal(t, 1, agg.SeenBy("m1"))
}

func TestProfileCacheStaleFetchLoses(t *testing.T) {
	cache := NewProfileCache()

	slow := cache.NextVersion()
	fresh := cache.NextVersion()

	require.True(t, cache.ObserveAt(models.Profile{UserID: "u1", DisplayName: "New"}, fresh))
	require.False(t, cache.ObserveAt(models.Profile{UserID: "u1", DisplayName: "Old"}, slow))

	profile, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "New", profile.DisplayName)
}

func TestProfileCacheMissing(t *testing.T) {
	cache := NewProfileCache()
	cache.Observe(models.Profile{UserID: "u1", DisplayName: "Ann"})

	missing := cache.Missing([]string{"u1", "u2", "u2", "u3"})
	assert.Equal(t, []string{"u2", "u3"}, missing)
}
