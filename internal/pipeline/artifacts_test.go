package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWriteTemp(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestArtifacts_CleanupRemovesEverything(t *testing.T) {
	base := t.TempDir()
	staged := mustWriteTemp(t, base, "staged.pdf")
	workDir := filepath.Join(base, "work")
	require.NoError(t, os.Mkdir(workDir, 0o755))
	mustWriteTemp(t, workDir, "page-1.png")

	a := NewArtifacts(nil)
	a.TrackStaged(staged)
	a.TrackWorkDir(workDir)
	a.Cleanup()

	assert.NoFileExists(t, staged)
	assert.NoDirExists(t, workDir)

	// A second run has nothing left to do and must not panic.
	a.Cleanup()
}

func TestArtifacts_ReleaseStagedRunsOnce(t *testing.T) {
	base := t.TempDir()
	staged := mustWriteTemp(t, base, "staged.jpg")

	a := NewArtifacts(nil)
	a.TrackStaged(staged)
	a.ReleaseStaged()
	assert.NoFileExists(t, staged)

	// A new file at the same path belongs to someone else now.
	mustWriteTemp(t, base, "staged.jpg")
	a.ReleaseStaged()
	a.Cleanup()
	assert.FileExists(t, staged)
}

func TestArtifacts_MissingPathsAreFine(t *testing.T) {
	a := NewArtifacts(nil)
	a.TrackStaged(filepath.Join(t.TempDir(), "never-created"))
	a.TrackWorkDir(filepath.Join(t.TempDir(), "also-never-created"))
	a.Cleanup()
}

func TestArtifacts_EmptyTrackerIsANoop(t *testing.T) {
	NewArtifacts(nil).Cleanup()
}
