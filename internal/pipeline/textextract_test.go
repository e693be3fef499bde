package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// runnerFunc adapts a closure into a Runner for tests.
type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f(ctx, name, args...)
}

func localOCRJob(pages ...string) *IngestionJob {
	return &IngestionJob{ID: "job-1", Filename: "scan.pdf", Kind: MediaPDF, PageImages: pages}
}

func TestLocalOCRExtractor_JoinsFragmentsInPageOrder(t *testing.T) {
	// Later pages finish first; the join must still follow page order.
	texts := map[string]string{
		"p1.png": "page one",
		"p2.png": "page two",
		"p3.png": "page three",
	}
	delays := map[string]time.Duration{
		"p1.png": 30 * time.Millisecond,
		"p2.png": 15 * time.Millisecond,
		"p3.png": 0,
	}
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		img := args[0]
		time.Sleep(delays[img])
		return []byte(texts[img] + "\n"), nil, nil
	})

	ex := NewLocalOCRExtractor(runner, DefaultLocalOCRConfig())
	got, err := ex.Extract(context.Background(), localOCRJob("p1.png", "p2.png", "p3.png"))
	require.NoError(t, err)
	assert.Equal(t, "page one\n\f\npage two\n\f\npage three", got)
}

func TestLocalOCRExtractor_InvokesEngineCorrectly(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()
		return []byte("text"), nil, nil
	})

	cfg := LocalOCRConfig{Tesseract: "tesseract", Language: "deu", Concurrency: 2}
	ex := NewLocalOCRExtractor(runner, cfg)
	_, err := ex.Extract(context.Background(), localOCRJob("a.png"))
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, []string{"tesseract", "a.png", "stdout", "-l", "deu"}, calls[0])
}

func TestLocalOCRExtractor_PageFailureDegradesToEmpty(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if args[0] == "p2.png" {
			return nil, []byte("Error in pixReadStream"), fmt.Errorf("exit status 1")
		}
		return []byte("ok"), nil, nil
	})

	ex := NewLocalOCRExtractor(runner, DefaultLocalOCRConfig())
	got, err := ex.Extract(context.Background(), localOCRJob("p1.png", "p2.png", "p3.png"))
	require.NoError(t, err, "a single bad page must not fail the job")
	assert.Equal(t, "ok\n\f\n\n\f\nok", got)
}

func TestLocalOCRExtractor_MissingEngineIsFatal(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, nil, fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
	})

	ex := NewLocalOCRExtractor(runner, DefaultLocalOCRConfig())
	_, err := ex.Extract(context.Background(), localOCRJob("p1.png", "p2.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.Equal(t, StageLocalOCR, ErrorStage(err))
}

func TestLocalOCRExtractor_NoPages(t *testing.T) {
	ex := NewLocalOCRExtractor(runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		t.Fatal("runner must not be called without pages")
		return nil, nil, nil
	}), DefaultLocalOCRConfig())

	_, err := ex.Extract(context.Background(), localOCRJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestDocumentTextRequest(t *testing.T) {
	req := documentTextRequest([]byte("image bytes"))

	require.Len(t, req.Requests, 1)
	assert.Equal(t, []byte("image bytes"), req.Requests[0].Image.Content)
	require.Len(t, req.Requests[0].Features, 1)
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, req.Requests[0].Features[0].Type)
}

func TestDocumentText(t *testing.T) {
	t.Run("full annotation", func(t *testing.T) {
		got, err := documentText(&visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{FullTextAnnotation: &visionpb.TextAnnotation{Text: "HEMOGLOBIN 13.5"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "HEMOGLOBIN 13.5", got)
	})

	t.Run("missing annotation is valid empty output", func(t *testing.T) {
		got, err := documentText(&visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{}},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("per-image error", func(t *testing.T) {
		_, err := documentText(&visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{Error: &statuspb.Status{Message: "image too large"}},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "image too large")
	})

	t.Run("empty response", func(t *testing.T) {
		_, err := documentText(&visionpb.BatchAnnotateImagesResponse{})
		assert.Error(t, err)
	})
}

func TestLocalOCRExtractor_CancellationIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		cancel()
		return nil, nil, ctx.Err()
	})

	ex := NewLocalOCRExtractor(runner, DefaultLocalOCRConfig())
	_, err := ex.Extract(ctx, localOCRJob("p1.png", "p2.png"))
	require.Error(t, err, "a cancelled job must not degrade to empty pages")
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageLocalOCR, ErrorStage(err))
}

func TestLocalOCRExtractor_TrimsFragmentWhitespace(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("\n  leading and trailing  \n\n"), nil, nil
	})
	ex := NewLocalOCRExtractor(runner, DefaultLocalOCRConfig())

	got, err := ex.Extract(context.Background(), localOCRJob("p1.png"))
	require.NoError(t, err)
	assert.Equal(t, "leading and trailing", got)
}
