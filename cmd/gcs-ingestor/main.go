package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/carevault/reportflow/internal/gcp"
	"github.com/carevault/reportflow/internal/pipeline"
)

// GCSEvent is the payload of a google.cloud.storage.object.v1.finalized
// event, reduced to the fields the ingestor needs.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

var (
	svc     *pipeline.Service
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("IngestFromGCS", ingestFromGCS)
}

// main is required by the Go Functions Framework.
func main() {}

// ingestFromGCS downloads a newly finalized object into the staging area and
// runs the ingestion pipeline on it.
func ingestFromGCS(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		svc, initErr = pipeline.NewService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}
	if svc.StorageClient() == nil {
		return fmt.Errorf("no storage client configured; set AUDIT_BUCKET or IMAGES_BUCKET")
	}

	var gcsEvent GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	base := filepath.Base(gcsEvent.Name)
	stagedPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", uuid.NewString(), base))
	if err := gcp.DownloadObject(ctx, svc.StorageClient(), gcsEvent.Bucket, gcsEvent.Name, stagedPath); err != nil {
		slog.Error("Failed to download object", "error", err, "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)
		return err
	}

	// Process owns the staged copy from here and removes it on every path.
	_, err := svc.Ingestor.Process(ctx, pipeline.Upload{Path: stagedPath, Filename: base})
	if err != nil {
		// The error is already logged with context within the pipeline.
		return err
	}
	return nil
}
