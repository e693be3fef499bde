package main

import (
	"context"
	"encoding/json"
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

	functions.HTTP("ListReports", handleListReports)
}

// main is required by the Go Functions Framework.
func main() {}

// handleListReports returns every persisted report, newest first.
func handleListReports(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		svc, initErr = pipeline.NewService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		writeError(w, http.StatusInternalServerError, "failed to initialize service")
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reports, err := svc.Ingestor.ListReports(r.Context())
	if err != nil {
		slog.Error("Listing reports failed", "error", err)
		writeError(w, pipeline.HTTPStatus(err), "failed to list reports")
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}

	writeJSON(w, http.StatusOK, models.ListResponse{Reports: reports})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
