package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nodekit/service/node"
)

func TestMigrate_Idempotent(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
}

func TestUpsertAndListNodes(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	for _, p := range []UpsertNodeParams{
		{Chain: node.ChainADM, URL: "https://b.example.com", Priority: 5},
		{Chain: node.ChainADM, URL: "https://a.example.com", Priority: 5, SupportsWS: true},
		{Chain: node.ChainADM, URL: "https://c.example.com", Priority: 10},
		{Chain: node.ChainDOGE, URL: "https://doge.example.com"},
	} {
		rec, err := store.UpsertNode(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, p.URL, rec.URL)
		assert.Equal(t, node.StatusUnknown, rec.Status)
		assert.Nil(t, rec.LastCheckedAt)
		assert.WithinDuration(t, time.Now(), rec.CreatedAt, 5*time.Second)
	}

	t.Run("ordered by priority then url", func(t *testing.T) {
		records, err := store.ListNodes(ctx, node.ChainADM)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "https://c.example.com", records[0].URL)
		assert.Equal(t, "https://a.example.com", records[1].URL)
		assert.Equal(t, "https://b.example.com", records[2].URL)
		assert.True(t, records[1].SupportsWS)
	})

	t.Run("other chains are separate", func(t *testing.T) {
		records, err := store.ListNodes(ctx, node.ChainDOGE)
		require.NoError(t, err)
		require.Len(t, records, 1)

		records, err = store.ListNodes(ctx, node.ChainDASH)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("upsert updates priority", func(t *testing.T) {
		rec, err := store.UpsertNode(ctx, UpsertNodeParams{Chain: node.ChainADM, URL: "https://b.example.com", Priority: 20})
		require.NoError(t, err)
		assert.Equal(t, 20, rec.Priority)

		records, err := store.ListNodes(ctx, node.ChainADM)
		require.NoError(t, err)
		assert.Equal(t, "https://b.example.com", records[0].URL)
	})

	t.Run("record converts to node", func(t *testing.T) {
		rec, err := store.GetNode(ctx, node.ChainADM, "https://a.example.com")
		require.NoError(t, err)

		n, err := rec.Node()
		require.NoError(t, err)
		assert.Equal(t, "https://a.example.com", n.URL())
		assert.True(t, n.SupportsWS())
		assert.Equal(t, 5, n.Priority())
	})
}

func TestRecordNodeStatus(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.UpsertNode(ctx, UpsertNodeParams{Chain: node.ChainADM, URL: "https://a.example.com", Priority: 3})
	require.NoError(t, err)

	require.NoError(t, store.RecordNodeStatus(ctx, node.ChainADM, "https://a.example.com", node.StatusOffline, now))

	rec, err := store.GetNode(ctx, node.ChainADM, "https://a.example.com")
	require.NoError(t, err)
	assert.Equal(t, node.StatusOffline, rec.Status)
	assert.Equal(t, 3, rec.Priority)
	require.NotNil(t, rec.LastCheckedAt)
	assert.WithinDuration(t, now, *rec.LastCheckedAt, time.Microsecond)

	t.Run("unknown node is inserted", func(t *testing.T) {
		require.NoError(t, store.RecordNodeStatus(ctx, node.ChainDASH, "https://dash.example.com", node.StatusOnline, now))

		rec, err := store.GetNode(ctx, node.ChainDASH, "https://dash.example.com")
		require.NoError(t, err)
		assert.Equal(t, node.StatusOnline, rec.Status)
		assert.Equal(t, 0, rec.Priority)
	})

	t.Run("upsert keeps status", func(t *testing.T) {
		_, err := store.UpsertNode(ctx, UpsertNodeParams{Chain: node.ChainADM, URL: "https://a.example.com", Priority: 9})
		require.NoError(t, err)

		rec, err := store.GetNode(ctx, node.ChainADM, "https://a.example.com")
		require.NoError(t, err)
		assert.Equal(t, node.StatusOffline, rec.Status)
	})
}

func TestDeleteNode(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	store.MustExec(t, `INSERT INTO nodes (chain, url) VALUES ($1, $2)`, "adm", "https://a.example.com")

	require.NoError(t, store.DeleteNode(ctx, node.ChainADM, "https://a.example.com"))

	_, err := store.GetNode(ctx, node.ChainADM, "https://a.example.com")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	err = store.DeleteNode(ctx, node.ChainADM, "https://a.example.com")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
