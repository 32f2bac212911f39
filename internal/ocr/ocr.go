package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/semaphore"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/common"
)

type Config struct {
	Languages   []string // tesseract language set, e.g. ["chi_sim", "eng"]
	TessdataDir string   // custom traineddata location; "" uses the engine default
	DPI         int
	MaxPages    int // 0 = no limit; PDFs beyond this are truncated
	WorkDir     string

	// Timeout bounds a single recognition session. A hung engine must not
	// hold a queue worker past it.
	Timeout time.Duration

	// Concurrency caps simultaneous engine sessions so repeated requests
	// cannot exhaust tesseract instances.
	Concurrency int64
}

type Extraction struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "image-ocr" | "pdf-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// Extractor converts raster input into recognized text. Engine sessions are
// created per recognition and always closed, so the extractor is safe to
// share across concurrent requests.
type Extractor struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"chi_sim", "eng"}
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &Extractor{cfg: cfg, sem: semaphore.NewWeighted(cfg.Concurrency), logger: logger}
}

// EstimatePages reports the page count used for quota authorization before
// any recognition work: 1 for a single image, the PDF page count otherwise.
func (e *Extractor) EstimatePages(ctx context.Context, raw []byte, mimeType string) (int, error) {
	switch constants.MapMIMEToSourceType(mimeType) {
	case constants.IMAGE:
		return 1, nil
	case constants.PDF:
		return e.pdfPageCount(ctx, raw)
	default:
		return 0, fmt.Errorf("%w: mime type %q", common.ErrUnsupportedInput, mimeType)
	}
}

// ExtractText runs recognition over the input and returns the best-effort
// transcription. An empty string is a valid result, not an error.
func (e *Extractor) ExtractText(ctx context.Context, raw []byte, mimeType string) (Extraction, error) {
	start := time.Now()
	switch constants.MapMIMEToSourceType(mimeType) {
	case constants.IMAGE:
		res, err := e.extractImage(ctx, raw)
		res.Duration = time.Since(start)
		return res, err
	case constants.PDF:
		res, err := e.extractPDF(ctx, raw)
		res.Duration = time.Since(start)
		return res, err
	default:
		e.logger.Error("unsupported ocr input", "mime_type", mimeType)
		return Extraction{}, fmt.Errorf("%w: mime type %q", common.ErrUnsupportedInput, mimeType)
	}
}

func (e *Extractor) extractImage(ctx context.Context, raw []byte) (Extraction, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return Extraction{SourceType: constants.IMAGE}, fmt.Errorf("%w: undecodable image: %v", common.ErrUnsupportedInput, err)
	}

	txt, err := e.recognizeBytes(ctx, raw)
	if err != nil {
		return Extraction{SourceType: constants.IMAGE}, err
	}

	return Extraction{
		Text:       Normalize(txt),
		Pages:      1,
		SourceType: constants.IMAGE,
		Method:     "image-ocr",
		Language:   e.language(),
	}, nil
}

// recognizeBytes acquires an engine slot, runs one tesseract session over
// the image under the configured deadline and releases both, regardless of
// outcome.
func (e *Extractor) recognizeBytes(ctx context.Context, img []byte) (string, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrOCRFailure, err)
	}
	defer e.sem.Release(1)

	client := gosseract.NewClient()
	var closeOnce sync.Once
	closeClient := func() {
		closeOnce.Do(func() {
			if err := client.Close(); err != nil {
				e.logger.Warn("ocr.session.close_error", "error", err)
			}
		})
	}
	defer closeClient()

	if e.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return "", fmt.Errorf("%w: set tessdata prefix: %v", common.ErrOCRFailure, err)
		}
	}
	if err := client.SetLanguage(e.cfg.Languages...); err != nil {
		return "", fmt.Errorf("%w: set languages: %v", common.ErrOCRFailure, err)
	}
	if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.cfg.DPI)); err != nil {
		return "", fmt.Errorf("%w: set dpi: %v", common.ErrOCRFailure, err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("%w: set image: %v", common.ErrOCRFailure, err)
	}

	text, err := recognizeWithDeadline(ctx, client.Text, closeClient)
	if err != nil {
		return "", err
	}
	return text, nil
}

// recognizeWithDeadline runs recognize in its own goroutine so a hung engine
// cannot block the caller past the context deadline. On expiry abort tears
// the session down, which also unblocks the abandoned goroutine.
func recognizeWithDeadline(ctx context.Context, recognize func() (string, error), abort func()) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := recognize()
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		abort()
		return "", fmt.Errorf("%w: recognition aborted: %v", common.ErrOCRFailure, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return "", fmt.Errorf("%w: recognize: %v", common.ErrOCRFailure, out.err)
		}
		return out.text, nil
	}
}

func (e *Extractor) language() string {
	if len(e.cfg.Languages) == 0 {
		return ""
	}
	out := e.cfg.Languages[0]
	for _, l := range e.cfg.Languages[1:] {
		out += "+" + l
	}
	return out
}
