package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Stage names used to tag failures and log lines.
const (
	StageClassify   = "classify"
	StageAudit      = "audit-copy"
	StageRasterize  = "rasterize"
	StageCloudOCR   = "cloud-ocr"
	StageLocalOCR   = "local-ocr"
	StageStructured = "structured-extraction"
	StagePersist    = "persist"
)

// The error taxonomy surfaced to callers. Per-page OCR failures never reach
// this level; they degrade to empty page text inside the local OCR strategy.
var (
	// ErrNoFileProvided is returned when a request carries no upload.
	ErrNoFileProvided = errors.New("no file provided")

	// ErrExtractionFailed covers rasterization failures and total failure of
	// a text extraction strategy.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrStructuredExtractionFailed covers the generative call and the JSON
	// recovery of its response.
	ErrStructuredExtractionFailed = errors.New("structured extraction failed")

	// ErrPersistenceFailed covers writes to the report store and the audit
	// object store.
	ErrPersistenceFailed = errors.New("persistence failed")
)

// StageError ties a pipeline failure to the stage that produced it and the
// error kind it belongs to.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Status returns the HTTP status class the failure maps to: 400 for missing
// input, 500 for every downstream service or processing failure.
func (e *StageError) Status() int {
	if errors.Is(e.Kind, ErrNoFileProvided) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func failStage(stage string, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// HTTPStatus maps any error coming out of the pipeline to a status class.
func HTTPStatus(err error) int {
	var se *StageError
	if errors.As(err, &se) {
		return se.Status()
	}
	return http.StatusInternalServerError
}

// ErrorStage reports the stage a pipeline error was tagged with, or "".
func ErrorStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
