package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/sync/errgroup"
)

// PageSeparator joins page-level fragments of a multi-page extraction.
const PageSeparator = "\n\f\n"

// TextExtractor turns an ingestion job's input into a single text blob.
// The two implementations are mutually exclusive per job: cloud Vision for
// raster images, local OCR over rasterized pages for PDFs.
type TextExtractor interface {
	Extract(ctx context.Context, job *IngestionJob) (string, error)
}

// CloudVisionExtractor sends the original file to Cloud Vision in a single
// document-text-detection call.
type CloudVisionExtractor struct {
	client *vision.ImageAnnotatorClient
}

// NewCloudVisionExtractor wraps an ImageAnnotatorClient.
func NewCloudVisionExtractor(client *vision.ImageAnnotatorClient) *CloudVisionExtractor {
	return &CloudVisionExtractor{client: client}
}

func (e *CloudVisionExtractor) Extract(ctx context.Context, job *IngestionJob) (string, error) {
	content, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return "", failStage(StageCloudOCR, ErrExtractionFailed, err)
	}

	resp, err := e.client.BatchAnnotateImages(ctx, documentTextRequest(content))
	if err != nil {
		return "", failStage(StageCloudOCR, ErrExtractionFailed, err)
	}
	text, err := documentText(resp)
	if err != nil {
		return "", failStage(StageCloudOCR, ErrExtractionFailed, err)
	}
	if text == "" {
		// The service found no text. That is valid, empty output, not an error.
		slog.Warn("cloud ocr found no text", "jobId", job.ID, "file", job.Filename)
	}
	return text, nil
}

// documentTextRequest builds the single-image document-text-detection call.
func documentTextRequest(content []byte) *visionpb.BatchAnnotateImagesRequest {
	return &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
}

// documentText pulls the recognized text out of a batch response. A missing
// annotation means the service found no text, which is valid empty output.
func documentText(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.Responses) == 0 {
		return "", fmt.Errorf("no response from Vision API")
	}
	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return "", fmt.Errorf("Vision API error: %s", imgResp.Error.Message)
	}
	if imgResp.FullTextAnnotation == nil {
		return "", nil
	}
	return imgResp.FullTextAnnotation.Text, nil
}

// LocalOCRConfig configures the per-page tesseract strategy.
type LocalOCRConfig struct {
	Tesseract   string // binary name or path
	Language    string
	Concurrency int
}

// DefaultLocalOCRConfig returns the production configuration.
func DefaultLocalOCRConfig() LocalOCRConfig {
	return LocalOCRConfig{Tesseract: "tesseract", Language: "eng", Concurrency: 4}
}

// LocalOCRExtractor recognizes each rasterized page with tesseract. Pages run
// concurrently, but fragments are recombined by page index, so completion
// order never leaks into the joined text. A single page's failure degrades to
// an empty fragment; only total inability to run the engine is fatal.
type LocalOCRExtractor struct {
	runner Runner
	cfg    LocalOCRConfig
}

// NewLocalOCRExtractor creates a LocalOCRExtractor using the given runner.
func NewLocalOCRExtractor(runner Runner, cfg LocalOCRConfig) *LocalOCRExtractor {
	return &LocalOCRExtractor{runner: runner, cfg: cfg}
}

func (e *LocalOCRExtractor) Extract(ctx context.Context, job *IngestionJob) (string, error) {
	pages := job.PageImages
	if len(pages) == 0 {
		return "", failStage(StageLocalOCR, ErrExtractionFailed, fmt.Errorf("no page images to recognize"))
	}

	fragments := make([]string, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Concurrency)

	for i, img := range pages {
		eg.Go(func() error {
			text, err := e.recognize(gctx, img)
			if err != nil {
				if errors.Is(err, exec.ErrNotFound) {
					// The engine itself is unreachable; no page can succeed.
					return err
				}
				if gctx.Err() != nil {
					// A cancelled job must fail here, not limp into the
					// generative stage with empty text.
					return err
				}
				// One bad page contributes no text.
				slog.Warn("page ocr failed", "jobId", job.ID, "page", i+1, "error", err)
				return nil
			}
			fragments[i] = text
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", failStage(StageLocalOCR, ErrExtractionFailed, err)
	}

	return strings.Join(fragments, PageSeparator), nil
}

func (e *LocalOCRExtractor) recognize(ctx context.Context, imagePath string) (string, error) {
	// tesseract <image> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, imagePath, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 1<<10))
	}
	return strings.TrimSpace(string(out)), nil
}
