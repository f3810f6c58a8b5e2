package persist

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/castwave/client/internal/testutil"
	"github.com/castwave/client/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "castwave:query:"

func TestRedisPersister(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	p := NewRedisPersister(testutil.NewLogger(), client, prefix, time.Hour)
	ctx := context.Background()
	updatedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Get returns nil on miss", func(t *testing.T) {
		entry, err := p.Get(ctx, "https://api/podcasts")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Save stores raw JSON as is", func(t *testing.T) {
		err := p.Save(ctx, "https://api/podcasts", json.RawMessage(`{"results":[]}`), updatedAt)
		require.NoError(t, err)

		entry, err := p.Get(ctx, "https://api/podcasts")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.JSONEq(t, `{"results":[]}`, string(entry.Data))
		assert.True(t, entry.UpdatedAt.Equal(updatedAt))
		assert.Equal(t, time.Hour, mr.TTL(prefix+"https://api/podcasts"))
	})

	t.Run("Save encodes values", func(t *testing.T) {
		err := p.Save(ctx, "https://api/users/me", map[string]string{"id": "u1"}, updatedAt)
		require.NoError(t, err)

		entry, err := p.Get(ctx, "https://api/users/me")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"u1"}`, string(entry.Data))
	})

	t.Run("LoadAll skips corrupt entries", func(t *testing.T) {
		require.NoError(t, mr.Set(prefix+"broken", "{nope"))
		require.NoError(t, mr.Set("other:key", "{}"))

		records, err := p.LoadAll(ctx)
		require.NoError(t, err)

		keys := make([]string, 0, len(records))
		for _, rec := range records {
			keys = append(keys, rec.Key)
		}
		sort.Strings(keys)

		assert.Equal(t, []string{"https://api/podcasts", "https://api/users/me"}, keys)
	})

	t.Run("Save nil deletes", func(t *testing.T) {
		require.NoError(t, p.Save(ctx, "https://api/users/me", nil, updatedAt))
		assert.False(t, mr.Exists(prefix+"https://api/users/me"))
	})

	t.Run("Clear removes prefixed keys only", func(t *testing.T) {
		n, err := p.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, mr.Exists("other:key"))
	})
}

func TestRedisPersisterHydratesStore(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	p := NewRedisPersister(testutil.NewLogger(), client, prefix, 0)
	ctx := context.Background()

	first := query.NewStore(testutil.NewLogger(), query.WithPersister(p))
	first.SetData("https://api/podcasts/p1", map[string]any{"id": "p1", "title": "Deep Sea"})
	first.Close()

	second := query.NewStore(testutil.NewLogger(), query.WithPersister(p))
	defer second.Close()

	n, err := second.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, ok := second.GetRecord("https://api/podcasts/p1")
	require.True(t, ok)
	assert.Equal(t, query.StatusSuccess, rec.Status)

	type podcast struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	got, err := query.As[podcast](rec.Data)
	require.NoError(t, err)
	assert.Equal(t, podcast{ID: "p1", Title: "Deep Sea"}, got)
}
