package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageUpload(t *testing.T) {
	path, err := StageUpload(strings.NewReader("upload bytes"), "visit-summary.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "upload bytes", string(data))
	assert.True(t, strings.HasSuffix(path, "-visit-summary.pdf"))
}

func TestStageUpload_StripsDirectoryComponents(t *testing.T) {
	path, err := StageUpload(strings.NewReader("x"), "../../etc/passwd")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	assert.Equal(t, os.TempDir(), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-passwd"))
}

func TestStageFile_LeavesOriginalIntact(t *testing.T) {
	src := filepath.Join(t.TempDir(), "original.jpg")
	require.NoError(t, os.WriteFile(src, []byte("image"), 0o644))

	staged, err := StageFile(src)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(staged) })

	assert.NotEqual(t, src, staged)
	assert.FileExists(t, src)
	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))
}
