package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

func TestStoreFetchRequest(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.PutRequest(analysis.Request{ID: 1, Text: "hello"})

	req, err := store.FetchRequest(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "hello", req.Text)

	_, err = store.FetchRequest(context.Background(), 2)
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestStoreFetchRequestCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().FetchRequest(ctx, 1)
	require.ErrorIs(t, err, analysis.ErrStoreUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreAssociationsSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.PutGenre(analysis.Genre{ID: 5, Name: "Horror", Keywords: "ghost"})
	store.PutGenre(analysis.Genre{ID: 2, Name: "Fantasy", Keywords: "dragon"})
	require.NoError(t, store.Associate(10, 5))
	require.NoError(t, store.Associate(10, 2))
	require.NoError(t, store.Associate(10, 5))

	got, err := store.FetchGenreAssociations(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []analysis.GenreAssociation{
		{GenreID: 2, GenreName: "Fantasy", GenreKeywords: "dragon"},
		{GenreID: 5, GenreName: "Horror", GenreKeywords: "ghost"},
	}, got)

	empty, err := store.FetchGenreAssociations(context.Background(), 11)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestStoreAssociateUnknownGenre(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, NewStore().Associate(1, 99), analysis.ErrNotFound)
}

func TestStorePing(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Ping(context.Background()))
	store.SetPingError(errors.New("down"))
	require.ErrorIs(t, store.Ping(context.Background()), analysis.ErrStoreUnavailable)
}
