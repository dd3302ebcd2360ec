package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateStore_BootstrapsBuiltins(t *testing.T) {
	ts, err := NewTemplateStore(t.TempDir())
	require.NoError(t, err)

	list, err := ts.List()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, tpl := range list {
		names[tpl.Name] = true
		require.True(t, tpl.Builtin)
	}
	require.True(t, names["shell"])
	require.True(t, names["dev-pair"])
}

func TestTemplateStore_CreateGetInstantiateLifecycle(t *testing.T) {
	ts, err := NewTemplateStore(t.TempDir())
	require.NoError(t, err)

	blueprints := []PaneTemplate{
		{Kind: "terminal", Command: "/bin/sh", Title: "build", Rows: 24, Cols: 80},
		{Kind: "terminal", Command: "/bin/sh", Title: "run", Rows: 24, Cols: 80},
	}
	created, err := ts.CreateFromSession("my-layout", "two shells", blueprints)
	require.NoError(t, err)
	require.Equal(t, "my-layout", created.Name)
	require.Len(t, created.Panes, 2)
	require.False(t, created.Builtin)
	require.Equal(t, 0, created.UseCount)
	require.Nil(t, created.LastUsed)

	got, err := ts.Get("my-layout")
	require.NoError(t, err)
	require.Equal(t, created.Panes, got.Panes)
	require.Equal(t, 0, got.UseCount) // Get never bumps usage stats

	require.NoError(t, ts.MarkUsed("my-layout"))
	afterUse, err := ts.Get("my-layout")
	require.NoError(t, err)
	require.Equal(t, 1, afterUse.UseCount)
	require.NotNil(t, afterUse.LastUsed)
}

func TestTemplateStore_GetMissingReturnsNotFound(t *testing.T) {
	ts, err := NewTemplateStore(t.TempDir())
	require.NoError(t, err)
	_, err = ts.Get("does-not-exist")
	require.Error(t, err)
}

func TestTemplateStore_CreateFromSessionDoesNotSeedAsBuiltin(t *testing.T) {
	dir := t.TempDir()
	ts, err := NewTemplateStore(dir)
	require.NoError(t, err)

	_, err = ts.CreateFromSession("shell", "a user-overridden shell template", nil)
	require.NoError(t, err)

	// bootstrapBuiltins only seeds names absent at construction time, so a
	// second NewTemplateStore over the same dir must not clobber the
	// user's edit to the built-in "shell" name.
	ts2, err := NewTemplateStore(dir)
	require.NoError(t, err)
	got, err := ts2.Get("shell")
	require.NoError(t, err)
	require.Equal(t, "a user-overridden shell template", got.Description)
	require.False(t, got.Builtin)
}
