package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
	"github.com/sheetsnap/sheetsnap/internal/llm"
	"github.com/sheetsnap/sheetsnap/internal/ocr"
	"github.com/sheetsnap/sheetsnap/internal/quota"
	"github.com/sheetsnap/sheetsnap/internal/repository"
	"github.com/sheetsnap/sheetsnap/internal/spreadsheet"
)

type stubOCR struct {
	estimate    int
	estimateErr error
	extraction  ocr.Extraction
	extractErr  error

	extractCalls int
}

func (s *stubOCR) EstimatePages(context.Context, []byte, string) (int, error) {
	return s.estimate, s.estimateErr
}

func (s *stubOCR) ExtractText(context.Context, []byte, string) (ocr.Extraction, error) {
	s.extractCalls++
	return s.extraction, s.extractErr
}

type stubLLM struct {
	out json.RawMessage
	err error

	calls int
}

func (s *stubLLM) Extract(context.Context, llm.ExtractRequest) (json.RawMessage, error) {
	s.calls++
	return s.out, s.err
}

type fixture struct {
	pipe   *Pipeline
	store  *repository.MemoryStore
	userID uuid.UUID
	ocr    *stubOCR
	llm    *stubLLM
}

func newFixture(t *testing.T, pagesLimit int, o *stubOCR, l *stubLLM) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	userID := uuid.New()
	err := store.CreateAccount(context.Background(), &entity.UsageAccount{
		UserID:     userID,
		Plan:       constants.PlanFree,
		PagesLimit: pagesLimit,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	ledger := quota.NewLedger(store, nil)
	pipe := New(nil, o, l, spreadsheet.NewGenerator(nil), ledger, store)
	return &fixture{pipe: pipe, store: store, userID: userID, ocr: o, llm: l}
}

func (f *fixture) pagesUsed(t *testing.T) int {
	t.Helper()
	acct, err := f.store.ReadUsage(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("ReadUsage() error = %v", err)
	}
	return acct.PagesUsed
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	o := &stubOCR{
		estimate:   1,
		extraction: ocr.Extraction{Text: "Name: A\nAge: 5", Pages: 1, SourceType: constants.IMAGE},
	}
	l := &stubLLM{out: json.RawMessage(`[{"name":"A","age":5}]`)}
	f := newFixture(t, 10, o, l)

	res, err := f.pipe.Run(ctx, Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.PageCount != 1 {
		t.Fatalf("PageCount = %d, want 1", res.PageCount)
	}
	if f.pagesUsed(t) != 1 {
		t.Fatalf("pages used = %d, want 1", f.pagesUsed(t))
	}

	wb, err := excelize.OpenReader(bytes.NewReader(res.Spreadsheet))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	want := [][]string{{"name", "age"}, {"A", "5"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}

	docs, err := f.store.ListDocuments(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != res.DocumentID {
		t.Fatalf("persisted documents = %v, want the run's document", docs)
	}
	if string(docs[0].StructuredData) != string(l.out) {
		t.Fatalf("stored StructuredData = %s", docs[0].StructuredData)
	}
}

func TestRunDeniedBeforeAnyWork(t *testing.T) {
	o := &stubOCR{estimate: 5, extraction: ocr.Extraction{Text: "x", Pages: 5}}
	l := &stubLLM{out: json.RawMessage(`{"a":1}`)}
	f := newFixture(t, 3, o, l)

	_, err := f.pipe.Run(context.Background(), Request{UserID: f.userID, RawBytes: []byte("pdf"), MimeType: "application/pdf"})
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("Run() error = %v, want ErrQuotaExceeded", err)
	}
	if o.extractCalls != 0 {
		t.Fatal("OCR ran for a request that was never authorized")
	}
	if l.calls != 0 {
		t.Fatal("model called for a request that was never authorized")
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
}

func TestRunOCRFailureDoesNotCharge(t *testing.T) {
	o := &stubOCR{estimate: 1, extractErr: fmt.Errorf("%w: tesseract crashed", common.ErrOCRFailure)}
	l := &stubLLM{}
	f := newFixture(t, 10, o, l)

	_, err := f.pipe.Run(context.Background(), Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if !errors.Is(err, common.ErrOCRFailure) {
		t.Fatalf("Run() error = %v, want ErrOCRFailure", err)
	}
	if l.calls != 0 {
		t.Fatal("model called after OCR failure")
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
}

func TestRunParseFailureDoesNotCharge(t *testing.T) {
	o := &stubOCR{estimate: 1, extraction: ocr.Extraction{Text: "x", Pages: 1}}
	l := &stubLLM{err: fmt.Errorf("%w: response is not valid json", common.ErrExtractionParse)}
	f := newFixture(t, 10, o, l)

	_, err := f.pipe.Run(context.Background(), Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if !errors.Is(err, common.ErrExtractionParse) {
		t.Fatalf("Run() error = %v, want ErrExtractionParse", err)
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
}

func TestRunUnsupportedShapeDoesNotCharge(t *testing.T) {
	o := &stubOCR{estimate: 1, extraction: ocr.Extraction{Text: "x", Pages: 1}}
	l := &stubLLM{out: json.RawMessage(`"just a string"`)}
	f := newFixture(t, 10, o, l)

	_, err := f.pipe.Run(context.Background(), Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if !errors.Is(err, common.ErrUnsupportedDataShape) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedDataShape", err)
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
}

// The authorization estimate can undercount; the charge re-validates with
// the actual page count and, when the ceiling no longer covers it, the
// computed artifact is discarded rather than delivered unbilled.
func TestRunChargeShortfallDiscardsArtifact(t *testing.T) {
	ctx := context.Background()
	o := &stubOCR{
		estimate:   1,
		extraction: ocr.Extraction{Text: "x", Pages: 2, SourceType: constants.PDF},
	}
	l := &stubLLM{out: json.RawMessage(`{"a":1}`)}
	f := newFixture(t, 1, o, l)

	res, err := f.pipe.Run(ctx, Request{UserID: f.userID, RawBytes: []byte("pdf"), MimeType: "application/pdf"})
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("Run() error = %v, want ErrQuotaExceeded", err)
	}
	if res != nil {
		t.Fatalf("Run() result = %v, want discarded artifact", res)
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
	docs, _ := f.store.ListDocuments(ctx, f.userID)
	if len(docs) != 0 {
		t.Fatalf("documents persisted for an unbilled run: %v", docs)
	}
}

func TestRunJSONOnlySkipsSpreadsheet(t *testing.T) {
	o := &stubOCR{estimate: 1, extraction: ocr.Extraction{Text: "x", Pages: 1}}
	// A scalar would fail spreadsheet generation, proving the generator
	// never ran.
	l := &stubLLM{out: json.RawMessage(`"bare scalar"`)}
	f := newFixture(t, 10, o, l)

	res, err := f.pipe.Run(context.Background(), Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png", JSONOnly: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Spreadsheet != nil {
		t.Fatal("spreadsheet generated despite JSONOnly")
	}
	if string(res.StructuredData) != `"bare scalar"` {
		t.Fatalf("StructuredData = %s", res.StructuredData)
	}
	if f.pagesUsed(t) != 1 {
		t.Fatalf("pages used = %d, want 1", f.pagesUsed(t))
	}
}

func TestRunCancelledBeforeCharge(t *testing.T) {
	o := &stubOCR{estimate: 1, extraction: ocr.Extraction{Text: "x", Pages: 1}}
	l := &stubLLM{out: json.RawMessage(`{"a":1}`)}
	f := newFixture(t, 10, o, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.pipe.Run(ctx, Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if f.pagesUsed(t) != 0 {
		t.Fatalf("pages used = %d, want 0", f.pagesUsed(t))
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	o := &stubOCR{estimate: 1, extraction: ocr.Extraction{Text: "x", Pages: 1}}
	l := &stubLLM{out: json.RawMessage(`{"a":1}`)}
	f := newFixture(t, 10, o, l)

	res, err := f.pipe.Run(ctx, Request{UserID: f.userID, RawBytes: []byte("img"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	otherUser := uuid.New()
	if err := f.pipe.DeleteDocument(ctx, res.DocumentID, otherUser); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("DeleteDocument() by other user error = %v, want ErrNotFound", err)
	}
	if err := f.pipe.DeleteDocument(ctx, res.DocumentID, f.userID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	docs, _ := f.store.ListDocuments(ctx, f.userID)
	if len(docs) != 0 {
		t.Fatalf("documents remain after delete: %v", docs)
	}
}
