package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"cloud.google.com/go/storage"

	"github.com/carevault/reportflow/internal/gcp"
	"github.com/carevault/reportflow/internal/models"
	"github.com/carevault/reportflow/internal/store"
)

// ServiceConfig holds the environment-derived configuration for a fully wired
// ingestion service.
type ServiceConfig struct {
	ProjectID      string
	VertexAIRegion string
	CollectionName string
	AuditBucket    string
	ImagesBucket   string
	Schema         models.ReportSchema
	WorkRoot       string
	OCRLanguage    string
	OCRConcurrency int
	RasterDPI      int
}

// loadServiceConfig reads configuration from the environment, applying
// defaults where sensible.
func loadServiceConfig() (ServiceConfig, error) {
	cfg := ServiceConfig{
		ProjectID:      gcp.GetEnv("PROJECT_ID", ""),
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		CollectionName: gcp.GetEnv("REPORT_COLLECTION", "medicalReports"),
		AuditBucket:    gcp.GetEnv("AUDIT_BUCKET", ""),
		ImagesBucket:   gcp.GetEnv("IMAGES_BUCKET", ""),
		Schema:         models.ReportSchema(gcp.GetEnv("REPORT_SCHEMA", string(models.SchemaClinical))),
		WorkRoot:       gcp.GetEnv("WORK_ROOT", ""),
		OCRLanguage:    gcp.GetEnv("OCR_LANGUAGE", "eng"),
	}
	if cfg.ProjectID == "" {
		return ServiceConfig{}, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.Schema != models.SchemaClinical && cfg.Schema != models.SchemaLab {
		return ServiceConfig{}, fmt.Errorf("REPORT_SCHEMA must be %q or %q, got %q", models.SchemaClinical, models.SchemaLab, cfg.Schema)
	}

	concurrency, err := strconv.Atoi(gcp.GetEnv("OCR_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		return ServiceConfig{}, fmt.Errorf("OCR_CONCURRENCY must be a positive integer")
	}
	cfg.OCRConcurrency = concurrency

	dpi, err := strconv.Atoi(gcp.GetEnv("RASTER_DPI", "300"))
	if err != nil || dpi < 1 {
		return ServiceConfig{}, fmt.Errorf("RASTER_DPI must be a positive integer")
	}
	cfg.RasterDPI = dpi

	return cfg, nil
}

// Service bundles a fully wired Ingestor with the clients it owns, so
// entrypoints can construct everything once and close it on shutdown.
type Service struct {
	Ingestor *Ingestor
	Config   ServiceConfig

	storageClient *storage.Client
	vertexClient  *gcp.VertexClient
	closers       []func() error
}

// NewService builds the production service: Firestore for persistence, Cloud
// Vision for image OCR, pdftoppm+tesseract for PDFs, Vertex AI for structured
// extraction, and Cloud Storage for audit copies and hosted page images.
func NewService(ctx context.Context) (*Service, error) {
	cfg, err := loadServiceConfig()
	if err != nil {
		return nil, err
	}

	svc := &Service{Config: cfg}

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, fsClient.Close)

	visionClient, err := gcp.NewVisionClient(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, visionClient.Close)

	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.vertexClient = vertexClient
	svc.closers = append(svc.closers, vertexClient.Close)

	deps := Deps{
		CloudOCR:  NewCloudVisionExtractor(visionClient),
		Generator: vertexClient,
		Store:     store.NewFirestoreStore(fsClient, cfg.CollectionName),
	}

	runner := NewExecRunner()
	rasterCfg := DefaultRasterizerConfig()
	rasterCfg.DPI = cfg.RasterDPI
	deps.Rasterizer = NewRasterizer(runner, rasterCfg)

	ocrCfg := DefaultLocalOCRConfig()
	ocrCfg.Language = cfg.OCRLanguage
	ocrCfg.Concurrency = cfg.OCRConcurrency
	deps.LocalOCR = NewLocalOCRExtractor(runner, ocrCfg)

	if cfg.AuditBucket != "" || cfg.ImagesBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		svc.storageClient = storageClient
		svc.closers = append(svc.closers, storageClient.Close)

		if cfg.AuditBucket != "" {
			deps.Audit = gcp.NewUploader(storageClient, cfg.AuditBucket)
		}
		if cfg.ImagesBucket != "" {
			deps.Hoster = gcp.NewUploader(storageClient, cfg.ImagesBucket)
		}
	} else {
		slog.Info("no storage buckets configured; audit copies and hosted images disabled")
	}

	svc.Ingestor = NewIngestor(deps, IngestorConfig{Schema: cfg.Schema, WorkRoot: cfg.WorkRoot})
	return svc, nil
}

// StorageClient exposes the service's Cloud Storage client, or nil when no
// bucket is configured.
func (s *Service) StorageClient() *storage.Client {
	return s.storageClient
}

// Close releases all clients the service owns.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("error closing client", "error", err)
		}
	}
	s.closers = nil
}
