package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, file, name, description string) {
	t.Helper()
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n\n# " + name + "\n\nBody text.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
}

func TestLoadEmptyDirIsEmptyLibrary(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	require.Empty(t, lib.List())

	lib, err = Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, lib.List())
}

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "review.md", "code-review", "Review diffs for regressions")
	writeSkill(t, dir, "summarize.md", "summarize", "Summarize long threads")

	subdir := filepath.Join(dir, "release-notes")
	require.NoError(t, os.MkdirAll(subdir, 0755))
	content := "---\nname: release-notes\ndescription: Draft release notes\n---\nBody.\n"
	require.NoError(t, os.WriteFile(filepath.Join(subdir, "SKILL.md"), []byte(content), 0644))

	lib, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, lib.List(), 3)

	skill, ok := lib.Get("Code-Review")
	require.True(t, ok)
	require.Equal(t, "Review diffs for regressions", skill.Description)

	_, ok = lib.Get("missing")
	require.False(t, ok)
}

func TestEnabledFiltersAndSkipsUnknown(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "a.md", "alpha", "First")
	writeSkill(t, dir, "b.md", "beta", "Second")

	lib, err := Load(dir)
	require.NoError(t, err)

	enabled := lib.Enabled([]string{"beta", "ghost"})
	require.Len(t, enabled, 1)
	require.Equal(t, "beta", enabled[0].Name)

	require.Empty(t, lib.Enabled(nil))
}

func TestLoadRejectsMissingFrontMatter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.md"), []byte("# no front matter\n"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "one.md", "dup", "First")
	writeSkill(t, dir, "two.md", "DUP", "Second")

	_, err := Load(dir)
	require.Error(t, err)
}
