package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StageUpload copies an incoming upload stream into a uniquely named staging
// path owned by the pipeline. The returned path is consumed by Process, which
// removes it once text extraction no longer needs it.
func StageUpload(r io.Reader, filename string) (string, error) {
	name := fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(filename))
	dest := filepath.Join(os.TempDir(), name)

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create staging file %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("stage upload to %s: %w", dest, err)
	}
	return dest, nil
}

// StageFile stages a copy of an existing local file, leaving the original
// untouched.
func StageFile(src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	return StageUpload(f, filepath.Base(src))
}
