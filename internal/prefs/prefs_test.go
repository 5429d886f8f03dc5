package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.Equal(t, Default(), Load(""))
}

func TestLoad_ReadsDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "scrapedeck")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prefs.toml"), []byte(`
theme = "Slate"
status_filter = " Failed "
sort_by = "url"
sort_order = "ASC"
`), 0o644))

	p := Load("")
	assert.Equal(t, Prefs{Theme: "Slate", Status: "failed", SortBy: "url", SortOrder: "asc"}, p)
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "prefs.toml")
	want := Prefs{Theme: "Kanagawa", Status: "pending", SortBy: "status", SortOrder: "asc"}

	require.NoError(t, Save(path, want))
	assert.Equal(t, want, Load(path))
}

func TestLoad_FallsBackOnBadInput(t *testing.T) {
	tmp := t.TempDir()

	empty := filepath.Join(tmp, "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("theme = \"\"\nsort_order = \"sideways\"\n"), 0o644))
	assert.Equal(t, Default(), Load(empty))

	broken := filepath.Join(tmp, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("not valid toml {{{\n"), 0o644))
	assert.Equal(t, Default(), Load(broken))
}
