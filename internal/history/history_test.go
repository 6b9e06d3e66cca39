package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	first, err := Record(ctx, db, Entry{
		Kind:          KindPublish,
		Site:          "https://a",
		Project:       "Alpha",
		Shot:          "SH010",
		Task:          "comp",
		VersionNumber: 3,
		Filename:      "Alpha_SEQ01_SH010_comp_v003",
		RemoteID:      77,
		CreatedAt:     100,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := Record(ctx, db, Entry{
		Kind:      KindNote,
		Site:      "https://a",
		Project:   "Alpha",
		Detail:    "client feedback",
		CreatedAt: 200,
	})
	require.NoError(t, err)

	entries, err := List(ctx, db, ListInput{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID, "newest first")
	assert.Equal(t, first.ID, entries[1].ID)
	assert.Equal(t, 77, entries[1].RemoteID)
}

func TestList_FilterByKind(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = Record(ctx, db, Entry{Kind: KindPublish, Site: "https://a"})
	require.NoError(t, err)
	_, err = Record(ctx, db, Entry{Kind: KindNote, Site: "https://a"})
	require.NoError(t, err)

	entries, err := List(ctx, db, ListInput{Kind: KindNote})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindNote, entries[0].Kind)
}

func TestList_LimitAndOffset(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		_, err := Record(ctx, db, Entry{Kind: KindPublish, Site: "https://a", CreatedAt: 100 + i})
		require.NoError(t, err)
	}

	page, err := List(ctx, db, ListInput{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(103), page[0].CreatedAt)
	assert.Equal(t, int64(102), page[1].CreatedAt)
}

func TestInit_Idempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Init(dir)
	require.NoError(t, err)
	_, err = Record(context.Background(), db, Entry{Kind: KindPublish, Site: "https://a"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Re-opening must not lose data or re-run migrations destructively.
	db, err = Init(dir)
	require.NoError(t, err)
	defer db.Close()

	entries, err := List(context.Background(), db, ListInput{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
