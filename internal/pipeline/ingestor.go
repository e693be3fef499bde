package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/carevault/reportflow/internal/models"
)

// MediaKind classifies an uploaded file.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
)

// JobState names the coordinator's sequential states. They exist for logging;
// transitions are strictly sequential with no re-entry and no retry loop.
type JobState string

const (
	StateReceived           JobState = "Received"
	StateClassified         JobState = "Classified"
	StateTextExtracted      JobState = "TextExtracted"
	StateStructureExtracted JobState = "StructureExtracted"
	StateNormalized         JobState = "Normalized"
	StatePersisted          JobState = "Persisted"
	StateCleaned            JobState = "Cleaned"
	StateDone               JobState = "Done"
)

// IngestionJob carries the per-request state of one ingestion run. It is
// created on entry, owned by the coordinator, and discarded with its
// artifacts when the run ends; it is never persisted.
type IngestionJob struct {
	ID             string
	SourcePath     string
	Filename       string
	Kind           MediaKind
	WorkDir        string
	PageImages     []string
	HostedImageURL string
	AuditURI       string
	State          JobState
}

// Upload describes the staged file handed over by the upload staging layer.
type Upload struct {
	Path     string
	Filename string
}

// IngestResult is what a successful run hands back to the caller.
type IngestResult struct {
	Records []models.Report
}

// PageRasterizer renders a PDF's pages into standalone images on disk.
type PageRasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// ReportStore persists and lists clinical reports.
type ReportStore interface {
	Insert(ctx context.Context, r models.Report) (models.Report, error)
	ListAll(ctx context.Context) ([]models.Report, error)
}

// ObjectUploader stores an audit copy of the original upload and returns its
// storage URI.
type ObjectUploader interface {
	Upload(ctx context.Context, localPath, destObject string) (string, error)
}

// ImageHoster publishes a local image and returns a browsable URL.
type ImageHoster interface {
	Host(ctx context.Context, localPath, destObject string) (string, error)
}

// Deps are the collaborators the coordinator sequences. Audit and Hoster may
// be nil, in which case those steps are skipped.
type Deps struct {
	Rasterizer PageRasterizer
	CloudOCR   TextExtractor
	LocalOCR   TextExtractor
	Generator  Generator
	Store      ReportStore
	Audit      ObjectUploader
	Hoster     ImageHoster
}

// IngestorConfig holds the coordinator's own knobs.
type IngestorConfig struct {
	Schema   models.ReportSchema
	WorkRoot string // parent for job work directories; "" means os.TempDir
}

// Ingestor coordinates one ingestion job end to end: classify, rasterize
// (PDF only), extract text, structure it, normalize, persist, clean up. No
// stage after a failure proceeds; artifacts created up to the failure point
// are still removed before the failure propagates.
type Ingestor struct {
	deps       Deps
	structured *StructuredExtractor
	cfg        IngestorConfig
}

// NewIngestor wires a coordinator from explicit collaborators.
func NewIngestor(deps Deps, cfg IngestorConfig) *Ingestor {
	if cfg.Schema == "" {
		cfg.Schema = models.SchemaClinical
	}
	return &Ingestor{
		deps:       deps,
		structured: NewStructuredExtractor(deps.Generator, cfg.Schema),
		cfg:        cfg,
	}
}

// Process runs one ingestion job. On any failure it cleans up whatever
// artifacts were created so far, then returns a typed stage error; the error
// never reports cleanup status.
func (ing *Ingestor) Process(ctx context.Context, upload Upload) (*IngestResult, error) {
	if upload.Path == "" {
		return nil, failStage(StageClassify, ErrNoFileProvided, nil)
	}

	job := &IngestionJob{
		ID:         uuid.NewString(),
		SourcePath: upload.Path,
		Filename:   upload.Filename,
		State:      StateReceived,
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(upload.Path)
	}
	logCtx := slog.With("jobId", job.ID, "filename", job.Filename)

	art := NewArtifacts(logCtx)
	art.TrackStaged(upload.Path)
	defer art.Cleanup()

	job.Kind = classify(job.Filename, job.SourcePath)
	job.State = StateClassified
	logCtx.Info("upload classified", "kind", job.Kind)

	// Audit copy of the original, while the staged file still exists.
	if ing.deps.Audit != nil {
		uri, err := ing.deps.Audit.Upload(ctx, job.SourcePath, auditObjectName(job))
		if err != nil {
			return nil, failStage(StageAudit, ErrPersistenceFailed, err)
		}
		job.AuditURI = uri
	}

	text, err := ing.extractText(ctx, job, art, logCtx)
	if err != nil {
		return nil, err
	}
	job.State = StateTextExtracted

	hostedRef := job.HostedImageURL
	if ing.cfg.Schema == models.SchemaLab {
		hostedRef = job.AuditURI
	}
	candidates, err := ing.structured.Extract(ctx, text, hostedRef)
	if err != nil {
		return nil, err
	}
	job.State = StateStructureExtracted

	reports := Normalize(ing.cfg.Schema, candidates)
	job.State = StateNormalized

	stored := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		rec, err := ing.deps.Store.Insert(ctx, r)
		if err != nil {
			// Earlier inserts stay; the batch is not transactional.
			return nil, failStage(StagePersist, ErrPersistenceFailed, err)
		}
		stored = append(stored, rec)
	}
	job.State = StatePersisted

	art.Cleanup()
	job.State = StateCleaned

	logCtx.Info("ingestion complete", "records", len(stored))
	job.State = StateDone
	return &IngestResult{Records: stored}, nil
}

// extractText runs the strategy selected by classification and releases the
// staged upload as soon as extraction completes, success or failure.
func (ing *Ingestor) extractText(ctx context.Context, job *IngestionJob, art *Artifacts, logCtx *slog.Logger) (string, error) {
	extractor := ing.deps.CloudOCR
	if job.Kind == MediaPDF {
		workDir, err := os.MkdirTemp(ing.cfg.WorkRoot, "ingest-"+job.ID+"-*")
		if err != nil {
			return "", failStage(StageRasterize, ErrExtractionFailed, err)
		}
		art.TrackWorkDir(workDir)
		job.WorkDir = workDir

		pages, err := ing.deps.Rasterizer.Rasterize(ctx, job.SourcePath, workDir)
		if err != nil {
			return "", failStage(StageRasterize, ErrExtractionFailed, err)
		}
		job.PageImages = pages
		logCtx.Info("pdf rasterized", "pages", len(pages))

		if ing.deps.Hoster != nil {
			url, err := ing.deps.Hoster.Host(ctx, pages[0], hostedObjectName(job))
			if err != nil {
				logCtx.Warn("hosting first page image failed; records will carry no image URL", "error", err)
			} else {
				job.HostedImageURL = url
			}
		}
		extractor = ing.deps.LocalOCR
	}

	text, err := extractor.Extract(ctx, job)
	art.ReleaseStaged()
	return text, err
}

// ListReports returns all persisted reports, newest first.
func (ing *Ingestor) ListReports(ctx context.Context) ([]models.Report, error) {
	reports, err := ing.deps.Store.ListAll(ctx)
	if err != nil {
		return nil, failStage(StagePersist, ErrPersistenceFailed, err)
	}
	return reports, nil
}

// classify picks the media kind from the file extension; everything that is
// not a PDF is treated as a raster image.
func classify(filename, path string) MediaKind {
	name := filename
	if name == "" {
		name = path
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return MediaPDF
	}
	return MediaImage
}

func auditObjectName(job *IngestionJob) string {
	return fmt.Sprintf("audit/%s/%s", job.ID, filepath.Base(job.Filename))
}

func hostedObjectName(job *IngestionJob) string {
	return fmt.Sprintf("pages/%s/page-1.png", job.ID)
}
