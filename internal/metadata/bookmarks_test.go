package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBookmarkStore_CreateGetBumpsAccessStats(t *testing.T) {
	bs := NewBookmarkStore(t.TempDir())

	created, err := bs.Create("daily-standup", "sess-1", "recurring dev session", []string{"daily"})
	require.NoError(t, err)
	require.Equal(t, int64(0), created.AccessCount)
	require.Nil(t, created.LastAccessed)

	got, err := bs.Get("daily-standup")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.AccessCount)
	require.NotNil(t, got.LastAccessed)

	got2, err := bs.Get("daily-standup")
	require.NoError(t, err)
	require.Equal(t, int64(2), got2.AccessCount)
}

func TestBookmarkStore_PeekDoesNotBumpAccessStats(t *testing.T) {
	bs := NewBookmarkStore(t.TempDir())
	_, err := bs.Create("b1", "sess-1", "", nil)
	require.NoError(t, err)

	peeked, err := bs.Peek("b1")
	require.NoError(t, err)
	require.Equal(t, int64(0), peeked.AccessCount)

	list, err := bs.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(0), list[0].AccessCount)
}

func TestBookmarkStore_ToggleFavorite(t *testing.T) {
	bs := NewBookmarkStore(t.TempDir())
	_, err := bs.Create("b1", "sess-1", "", nil)
	require.NoError(t, err)

	toggled, err := bs.ToggleFavorite("b1")
	require.NoError(t, err)
	require.True(t, toggled.IsFavorite)

	toggledBack, err := bs.ToggleFavorite("b1")
	require.NoError(t, err)
	require.False(t, toggledBack.IsFavorite)
}

func TestBookmarkStore_DeleteRemovesEntry(t *testing.T) {
	bs := NewBookmarkStore(t.TempDir())
	_, err := bs.Create("b1", "sess-1", "", nil)
	require.NoError(t, err)

	require.NoError(t, bs.Delete("b1"))
	_, err = bs.Peek("b1")
	require.Error(t, err)

	err = bs.Delete("b1")
	require.Error(t, err) // deleting an already-absent bookmark is an error, unlike Store.Delete
}

func TestBookmarkStore_ListReturnsAllBookmarks(t *testing.T) {
	bs := NewBookmarkStore(t.TempDir())
	_, err := bs.Create("b1", "sess-1", "", nil)
	require.NoError(t, err)
	_, err = bs.Create("b2", "sess-2", "", nil)
	require.NoError(t, err)

	list, err := bs.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
}
