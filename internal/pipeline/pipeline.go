package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/entity"
	"github.com/sheetsnap/sheetsnap/internal/llm"
	"github.com/sheetsnap/sheetsnap/internal/ocr"
	"github.com/sheetsnap/sheetsnap/internal/quota"
	"github.com/sheetsnap/sheetsnap/internal/repository"
)

// State tracks one request through the pipeline. Every non-terminal state
// has a failure exit; there is no partial recovery.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateAuthorized State = "AUTHORIZED"
	StateOcrDone    State = "OCR_DONE"
	StateExtracted  State = "EXTRACTED"
	StateCharged    State = "CHARGED"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// TextExtractor is the recognition dependency. Satisfied by *ocr.Extractor;
// tests substitute stubs.
type TextExtractor interface {
	EstimatePages(ctx context.Context, raw []byte, mimeType string) (int, error)
	ExtractText(ctx context.Context, raw []byte, mimeType string) (ocr.Extraction, error)
}

// SheetGenerator serializes structured JSON to workbook bytes.
type SheetGenerator interface {
	ToSpreadsheet(data []byte) ([]byte, error)
}

// Request is transient: it exists only for the duration of one run and is
// never persisted.
type Request struct {
	UserID     uuid.UUID
	RawBytes   []byte
	MimeType   string
	UserPrompt string

	// JSONOnly skips spreadsheet generation; the structured JSON is a valid
	// terminal product on its own.
	JSONOnly bool
}

// Result is the output of a completed run.
type Result struct {
	DocumentID     uuid.UUID
	Text           string
	StructuredData json.RawMessage
	Spreadsheet    []byte
	PageCount      int
	SourceType     string
}

// Pipeline sequences OCR, structured extraction and spreadsheet generation
// under quota authorization and charge. Dependencies are injected so engine
// and backend instances can be pooled and substituted in tests.
type Pipeline struct {
	logger *slog.Logger
	ocr    TextExtractor
	llm    llm.StructuredExtractor
	sheets SheetGenerator
	ledger *quota.Ledger
	docs   repository.DocumentStore
}

func New(
	logger *slog.Logger,
	textExtractor TextExtractor,
	structured llm.StructuredExtractor,
	sheets SheetGenerator,
	ledger *quota.Ledger,
	docs repository.DocumentStore,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger: logger,
		ocr:    textExtractor,
		llm:    structured,
		sheets: sheets,
		ledger: ledger,
		docs:   docs,
	}
}

// Run executes one extraction request:
//
//  1. estimate pages and authorize, before any expensive work;
//  2. OCR; 3. structured extraction; 4. spreadsheet generation —
//     failures here terminate the run with no charge;
//  5. charge the ACTUAL page count, re-validating the ceiling atomically.
//     If the ceiling was raced past meanwhile, the computed artifact is
//     discarded: a user must not receive output that was never billed;
//  6. persist the document and return.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	state := StateReceived
	fail := func(err error) (*Result, error) {
		p.logger.Error("pipeline.failed",
			"user_id", req.UserID,
			"state", string(state),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	estimate, err := p.ocr.EstimatePages(ctx, req.RawBytes, req.MimeType)
	if err != nil {
		return fail(err)
	}
	if err := p.ledger.Authorize(ctx, req.UserID, estimate); err != nil {
		return fail(err)
	}
	state = StateAuthorized
	p.logger.Debug("pipeline.authorized", "user_id", req.UserID, "estimated_pages", estimate)

	ext, err := p.ocr.ExtractText(ctx, req.RawBytes, req.MimeType)
	if err != nil {
		return fail(err)
	}
	state = StateOcrDone
	p.logger.Debug("pipeline.ocr_done",
		"user_id", req.UserID,
		"pages", ext.Pages,
		"text_len", len(ext.Text),
		"method", ext.Method,
	)

	structured, err := p.llm.Extract(ctx, llm.ExtractRequest{Text: ext.Text, UserPrompt: req.UserPrompt})
	if err != nil {
		return fail(err)
	}
	state = StateExtracted

	var sheet []byte
	if !req.JSONOnly {
		if sheet, err = p.sheets.ToSpreadsheet(structured); err != nil {
			return fail(err)
		}
	}

	// Last cancellation point: a caller may abandon the request at any time
	// before the charge; afterwards the result is always delivered.
	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	default:
	}

	actualPages := ext.Pages
	if actualPages <= 0 {
		actualPages = estimate
	}
	if err := p.ledger.Charge(ctx, req.UserID, actualPages); err != nil {
		return fail(err)
	}
	state = StateCharged

	doc := &entity.Document{
		ID:             uuid.New(),
		UserID:         req.UserID,
		SourceType:     ext.SourceType,
		PageCount:      actualPages,
		ExtractedText:  ext.Text,
		StructuredData: structured,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.docs.SaveDocument(ctx, doc); err != nil {
		// The charge is already committed; deliver the artifact anyway
		// rather than losing billed output.
		p.logger.Error("pipeline.save_document_failed", "user_id", req.UserID, "document_id", doc.ID, "error", err)
	}

	state = StateCompleted
	p.logger.Info("pipeline.completed",
		"user_id", req.UserID,
		"document_id", doc.ID,
		"pages", actualPages,
		"state", string(state),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		DocumentID:     doc.ID,
		Text:           ext.Text,
		StructuredData: structured,
		Spreadsheet:    sheet,
		PageCount:      actualPages,
		SourceType:     ext.SourceType,
	}, nil
}

// DeleteDocument removes a stored document on behalf of its owner.
func (p *Pipeline) DeleteDocument(ctx context.Context, id, userID uuid.UUID) error {
	if err := p.docs.DeleteDocument(ctx, id, userID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.logger.Info("pipeline.document_deleted", "document_id", id, "user_id", userID)
	return nil
}
