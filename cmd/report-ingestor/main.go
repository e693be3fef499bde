package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/carevault/reportflow/internal/models"
	"github.com/carevault/reportflow/internal/pipeline"
)

var (
	svc     *pipeline.Service
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "IngestReport" is the entry point name configured in GCP.
	functions.HTTP("IngestReport", handleIngestReport)
}

// main is required by the Go Functions Framework.
func main() {}

// handleIngestReport accepts a multipart upload under the "file" field, runs
// the ingestion pipeline on it, and returns the persisted records.
func handleIngestReport(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		svc, initErr = pipeline.NewService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		writeError(w, http.StatusInternalServerError, "failed to initialize service", "")
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// A request with no usable upload is the caller's error.
		writeError(w, http.StatusBadRequest, pipeline.ErrNoFileProvided.Error(), pipeline.StageClassify)
		return
	}
	defer file.Close()

	stagedPath, err := pipeline.StageUpload(file, header.Filename)
	if err != nil {
		slog.Error("Failed to stage upload", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "failed to stage upload", "")
		return
	}

	result, err := svc.Ingestor.Process(r.Context(), pipeline.Upload{Path: stagedPath, Filename: header.Filename})
	if err != nil {
		slog.Error("Ingestion failed", "error", err, "filename", header.Filename)
		writeError(w, pipeline.HTTPStatus(err), publicMessage(err), pipeline.ErrorStage(err))
		return
	}

	writeJSON(w, http.StatusCreated, models.IngestResponse{Records: result.Records})
}

// publicMessage maps pipeline errors to the coarse messages exposed to
// callers; internal detail stays in the logs.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrNoFileProvided):
		return pipeline.ErrNoFileProvided.Error()
	case errors.Is(err, pipeline.ErrExtractionFailed):
		return pipeline.ErrExtractionFailed.Error()
	case errors.Is(err, pipeline.ErrStructuredExtractionFailed):
		return pipeline.ErrStructuredExtractionFailed.Error()
	case errors.Is(err, pipeline.ErrPersistenceFailed):
		return pipeline.ErrPersistenceFailed.Error()
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, stage string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Stage: stage})
}
