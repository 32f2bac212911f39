package ocr

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/common"
)

// pdfPageCount validates the input as a PDF and returns its page count.
func (e *Extractor) pdfPageCount(_ context.Context, raw []byte) (int, error) {
	tmp, cleanup, err := e.writeTemp(raw, "*.pdf")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	n, err := api.PageCountFile(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: not a readable pdf: %v", common.ErrUnsupportedInput, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: pdf has no pages", common.ErrUnsupportedInput)
	}
	return n, nil
}

// extractPDF rasterizes a scanned PDF by pulling its embedded page images
// and OCRing each one. The billed page count is the PDF page count, not the
// image count: a page without any extractable image contributes no text.
func (e *Extractor) extractPDF(ctx context.Context, raw []byte) (Extraction, error) {
	res := Extraction{SourceType: constants.PDF, Method: "pdf-ocr", Language: e.language()}

	tmp, cleanup, err := e.writeTemp(raw, "*.pdf")
	if err != nil {
		return res, err
	}
	defer cleanup()

	pages, err := api.PageCountFile(tmp)
	if err != nil {
		return res, fmt.Errorf("%w: not a readable pdf: %v", common.ErrUnsupportedInput, err)
	}
	if pages <= 0 {
		return res, fmt.Errorf("%w: pdf has no pages", common.ErrUnsupportedInput)
	}
	res.Pages = pages

	selected := []string(nil)
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("pdf truncated to %d of %d pages", e.cfg.MaxPages, pages))
		res.Pages = e.cfg.MaxPages
		selected = []string{fmt.Sprintf("1-%d", e.cfg.MaxPages)}
	}

	outDir, err := os.MkdirTemp(e.cfg.WorkDir, "sheetsnap-pdf-")
	if err != nil {
		return res, fmt.Errorf("%w: temp dir: %v", common.ErrOCRFailure, err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	if err := api.ExtractImagesFile(tmp, outDir, selected, nil); err != nil {
		return res, fmt.Errorf("%w: extract page images: %v", common.ErrOCRFailure, err)
	}

	images, err := listImages(outDir)
	if err != nil {
		return res, fmt.Errorf("%w: list page images: %v", common.ErrOCRFailure, err)
	}

	var parts []string
	for _, img := range images {
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("%w: %v", common.ErrOCRFailure, ctx.Err())
		default:
		}
		data, err := os.ReadFile(img)
		if err != nil {
			return res, fmt.Errorf("%w: read page image: %v", common.ErrOCRFailure, err)
		}
		txt, err := e.recognizeBytes(ctx, data)
		if err != nil {
			return res, err
		}
		if txt = Normalize(txt); txt != "" {
			parts = append(parts, txt)
		}
	}

	res.Text = strings.Join(parts, "\n\n")
	return res, nil
}

func (e *Extractor) writeTemp(raw []byte, pattern string) (string, func(), error) {
	f, err := os.CreateTemp(e.cfg.WorkDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("%w: temp file: %v", common.ErrOCRFailure, err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("%w: write temp file: %v", common.ErrOCRFailure, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: close temp file: %v", common.ErrOCRFailure, err)
	}
	return name, cleanup, nil
}

// pageNumRe matches the page number in pdfcpu's extracted image names,
// <base>_<page>_<resource>.<ext>.
var pageNumRe = regexp.MustCompile(`_(\d+)_[^_.]+\.[^.]+$`)

// listImages returns extracted page images in page order. The page number
// is not zero-padded in the filename, so names are sorted by the parsed
// number, not lexicographically.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		switch constants.NormalizeExt(filepath.Ext(ent.Name())) {
		case "png", "jpg", "jpeg", "tif", "tiff":
			out = append(out, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := pageNumOf(out[i]), pageNumOf(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out, nil
}

// pageNumOf parses the page number out of an extracted image path, or
// MaxInt for names that do not match so they sort last.
func pageNumOf(path string) int {
	m := pageNumRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return math.MaxInt
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return math.MaxInt
	}
	return n
}
