package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// RasterizerConfig configures PDF page rendering.
type RasterizerConfig struct {
	Pdftoppm string // binary name or path
	DPI      int
	Optimize bool // validate and rewrite the PDF with pdfcpu before rendering
}

// DefaultRasterizerConfig returns the production configuration.
func DefaultRasterizerConfig() RasterizerConfig {
	return RasterizerConfig{Pdftoppm: "pdftoppm", DPI: 300, Optimize: true}
}

// Rasterizer renders each page of a PDF into a standalone PNG so the local
// OCR strategy can run on it. Page order is load-bearing: downstream OCR
// output is joined in the same order.
type Rasterizer struct {
	runner Runner
	cfg    RasterizerConfig
}

// NewRasterizer creates a Rasterizer using the given command runner.
func NewRasterizer(runner Runner, cfg RasterizerConfig) *Rasterizer {
	return &Rasterizer{runner: runner, cfg: cfg}
}

// Rasterize renders pdfPath into outDir and returns the page image paths in
// page order. outDir must be a fresh, job-scoped directory. Any failure is
// fatal to the ingestion job; there is no partial-page recovery.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	renderSrc := pdfPath
	if r.cfg.Optimize {
		optimized := filepath.Join(outDir, "optimized.pdf")
		if err := optimizePDF(pdfPath, optimized); err != nil {
			return nil, fmt.Errorf("optimize %s: %w", pdfPath, err)
		}
		renderSrc = optimized
		if n, err := api.PageCountFile(optimized); err == nil {
			slog.Debug("pdf prepared for rasterization", "path", pdfPath, "pages", n)
		}
	}

	prefix := filepath.Join(outDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <outDir>/page
	if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", strconv.Itoa(r.cfg.DPI), "-png", renderSrc, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 2<<10))
	}

	return collectPageImages(prefix)
}

// optimizePDF validates and rewrites the PDF with relaxed validation so
// slightly malformed scans still rasterize.
func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

// collectPageImages globs pdftoppm's output (prefix-1.png, prefix-2.png, ...)
// and orders it by numeric page suffix. pdftoppm zero-pads suffixes for larger
// documents, so the numeric sort covers both padded and unpadded names.
func collectPageImages(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no pages rendered")
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})
	return matches, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndexByte(base, '-')
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[idx+1:])
	return n
}
