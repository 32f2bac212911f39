package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
	"github.com/sheetsnap/sheetsnap/internal/llm/openai"
	"github.com/sheetsnap/sheetsnap/internal/ocr"
	"github.com/sheetsnap/sheetsnap/internal/pipeline"
	"github.com/sheetsnap/sheetsnap/internal/quota"
	"github.com/sheetsnap/sheetsnap/internal/repository"
	"github.com/sheetsnap/sheetsnap/internal/spreadsheet"
)

// snapsheet runs the extraction pipeline once against a local file and
// writes the resulting workbook next to it. Useful for smoke-testing OCR
// languages and prompts without a running daemon.
func main() {
	var (
		inPath  = flag.String("in", "", "input image or PDF (required)")
		outPath = flag.String("out", "", "output .xlsx path (default: input with .xlsx extension)")
		prompt  = flag.String("prompt", "", "optional extraction instruction passed to the model")
		dbPath  = flag.String("db", "", "sqlite ledger path (default: ephemeral in-memory account)")
		plan    = flag.String("plan", string(constants.PlanFree), "plan for the ephemeral account: FREE|MONTHLY|YEARLY")
		user    = flag.String("user", "", "user id (required with -db; generated otherwise)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: snapsheet -in scan.png [-out result.xlsx] [-prompt \"...\"]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, *inPath, *outPath, *prompt, *dbPath, *plan, *user, logger); err != nil {
		logger.Error("snapsheet failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, inPath, outPath, prompt, dbPath, plan, user string, logger *slog.Logger) error {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	cfg := common.LoadConfig()
	store, userID, err := openLedgerStore(ctx, dbPath, plan, user, cfg.Quota, logger)
	if err != nil {
		return err
	}

	extractor := ocr.NewExtractor(ocr.Config{
		Languages:   cfg.OCR.Languages,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		WorkDir:     cfg.OCR.WorkDir,
		Timeout:     cfg.OCR.Timeout,
		Concurrency: cfg.OCR.Concurrency,
	}, logger)
	llmClient := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxTextLen:  cfg.LLM.MaxTextLen,
	}, logger)
	ledger := quota.NewLedger(store, logger)
	pipe := pipeline.New(logger, extractor, llmClient, spreadsheet.NewGenerator(logger), ledger, store)

	ext := constants.NormalizeExt(filepath.Ext(inPath))
	res, err := pipe.Run(ctx, pipeline.Request{
		UserID:     userID,
		RawBytes:   raw,
		MimeType:   constants.DetectMIME(raw, ext),
		UserPrompt: prompt,
	})
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".xlsx"
	}
	if err := os.WriteFile(outPath, res.Spreadsheet, 0o644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	logger.Info("done",
		"document_id", res.DocumentID,
		"pages_billed", res.PageCount,
		"out", outPath,
		"json_bytes", len(res.StructuredData),
	)
	return nil
}

// openLedgerStore opens the sqlite ledger, or seeds a throwaway in-memory
// account when no database was given. Seeded accounts take their page
// allowance from the deployment's quota overrides.
func openLedgerStore(ctx context.Context, dbPath, plan, user string, quota common.QuotaConfig, logger *slog.Logger) (repository.Store, uuid.UUID, error) {
	if dbPath != "" {
		if user == "" {
			return nil, uuid.Nil, fmt.Errorf("-user is required with -db")
		}
		userID, err := uuid.Parse(user)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("parse -user: %w", err)
		}
		store, err := repository.OpenSQLite(ctx, dbPath, logger)
		if err != nil {
			return nil, uuid.Nil, err
		}
		return store, userID, nil
	}

	p := constants.Plan(strings.ToUpper(plan))
	if !constants.ValidPlan(p) {
		return nil, uuid.Nil, fmt.Errorf("unknown plan %q", plan)
	}
	store := repository.NewMemoryStore()
	userID := uuid.New()
	err := store.CreateAccount(ctx, &entity.UsageAccount{
		UserID:     userID,
		Plan:       p,
		PagesLimit: quota.PagesLimit(p),
	})
	if err != nil {
		return nil, uuid.Nil, err
	}
	return store, userID, nil
}
