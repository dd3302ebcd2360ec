package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaceterm/muxd/internal/muxerr"
)

func TestStore_CreateGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	m, err := s.Create("s1", "dev")
	require.NoError(t, err)
	require.Equal(t, "s1", m.SessionID)
	require.Equal(t, "dev", m.Name)
	require.Equal(t, EnvGeneric, m.ProjectContext.EnvironmentType)

	got, err := s.Get("s1")
	require.NoError(t, err)
	require.Equal(t, m.SessionID, got.SessionID)
	require.Equal(t, m.Name, got.Name)
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("nope")
	require.Error(t, err)
	me, ok := muxerr.As(err)
	require.True(t, ok)
	require.Equal(t, muxerr.NotFound, me.Code)
}

func TestStore_UpdateMutatesAndBumpsUpdatedAt(t *testing.T) {
	s := NewStore(t.TempDir())
	m, err := s.Create("s1", "dev")
	require.NoError(t, err)
	originalUpdated := m.UpdatedAt

	time.Sleep(time.Millisecond)
	updated, err := s.Update("s1", func(m *SessionMetadata) {
		m.Description = "a dev session"
		m.Tags = []string{"go", "backend"}
	})
	require.NoError(t, err)
	require.Equal(t, "a dev session", updated.Description)
	require.Equal(t, []string{"go", "backend"}, updated.Tags)
	require.True(t, updated.UpdatedAt.After(originalUpdated))

	got, err := s.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "a dev session", got.Description)
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Create("s1", "dev")
	require.NoError(t, err)

	require.NoError(t, s.Delete("s1"))

	_, err = s.Get("s1")
	require.Error(t, err)

	// Deleting an already-absent record is not an error.
	require.NoError(t, s.Delete("s1"))
}

func TestStore_SearchFiltersByNameTagsAndEnvironment(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Create("s1", "backend-api")
	require.NoError(t, err)
	_, err = s.Update("s1", func(m *SessionMetadata) {
		m.Tags = []string{"go", "backend"}
		m.ProjectContext.EnvironmentType = EnvGo
	})
	require.NoError(t, err)

	_, err = s.Create("s2", "frontend-app")
	require.NoError(t, err)
	_, err = s.Update("s2", func(m *SessionMetadata) {
		m.Tags = []string{"nodejs", "frontend"}
		m.ProjectContext.EnvironmentType = EnvNodeJs
		m.Attributes = map[string]string{"owner": "alice"}
	})
	require.NoError(t, err)

	byName, err := s.Search(SearchQuery{NameContains: "backend"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	require.Equal(t, "s1", byName[0].SessionID)

	byEnv, err := s.Search(SearchQuery{EnvironmentType: EnvNodeJs})
	require.NoError(t, err)
	require.Len(t, byEnv, 1)
	require.Equal(t, "s2", byEnv[0].SessionID)

	byAllTags, err := s.Search(SearchQuery{AllTags: []string{"go", "backend"}})
	require.NoError(t, err)
	require.Len(t, byAllTags, 1)
	require.Equal(t, "s1", byAllTags[0].SessionID)

	byAnyTags, err := s.Search(SearchQuery{AnyTags: []string{"backend", "frontend"}})
	require.NoError(t, err)
	require.Len(t, byAnyTags, 2)

	byAttribute, err := s.Search(SearchQuery{AttributeKey: "owner", AttributeValue: "alice"})
	require.NoError(t, err)
	require.Len(t, byAttribute, 1)
	require.Equal(t, "s2", byAttribute[0].SessionID)

	none, err := s.Search(SearchQuery{NameContains: "nothing-matches"})
	require.NoError(t, err)
	require.Empty(t, none)
}
