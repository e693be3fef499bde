package pipeline

import (
	"log/slog"
	"os"
)

// Artifacts owns every transient path created during one ingestion run: the
// staged upload and the job work directory (rasterized pages live inside it).
// All removals are best-effort: a cleanup failure is logged and never masks
// the pipeline error that led to it.
type Artifacts struct {
	log            *slog.Logger
	staged         string
	workDir        string
	stagedReleased bool
}

// NewArtifacts creates an empty tracker logging through log.
func NewArtifacts(log *slog.Logger) *Artifacts {
	if log == nil {
		log = slog.Default()
	}
	return &Artifacts{log: log}
}

// TrackStaged records the staged upload file.
func (a *Artifacts) TrackStaged(path string) { a.staged = path }

// TrackWorkDir records the job's scratch directory.
func (a *Artifacts) TrackWorkDir(path string) { a.workDir = path }

// ReleaseStaged removes the staged upload. It runs once text extraction has
// completed, whatever the outcome; nothing reads the file after that point.
func (a *Artifacts) ReleaseStaged() {
	if a.staged == "" || a.stagedReleased {
		return
	}
	a.stagedReleased = true
	if err := os.Remove(a.staged); err != nil && !os.IsNotExist(err) {
		a.log.Warn("failed to remove staged upload", "path", a.staged, "error", err)
	}
}

// Cleanup removes everything created so far. It is safe on every exit path
// and safe to call more than once.
func (a *Artifacts) Cleanup() {
	a.ReleaseStaged()
	if a.workDir == "" {
		return
	}
	if err := os.RemoveAll(a.workDir); err != nil {
		a.log.Warn("failed to remove work directory", "path", a.workDir, "error", err)
	}
	a.workDir = ""
}
