package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sheetsnap/sheetsnap/internal/async"
	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/ingest"
	"github.com/sheetsnap/sheetsnap/internal/llm/openai"
	"github.com/sheetsnap/sheetsnap/internal/ocr"
	"github.com/sheetsnap/sheetsnap/internal/pipeline"
	"github.com/sheetsnap/sheetsnap/internal/quota"
	"github.com/sheetsnap/sheetsnap/internal/repository"
	"github.com/sheetsnap/sheetsnap/internal/spreadsheet"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

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
		Concurrency: cfg.LLM.Concurrency,
	}, logger)

	ledger := quota.NewLedger(store, logger)
	pipe := pipeline.New(logger, extractor, llmClient, spreadsheet.NewGenerator(logger), ledger, store)

	queue := async.NewQueue(pipe, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	if cfg.Server.InboxDir != "" {
		go ingest.NewInbox(cfg.Server.InboxDir, queue, logger).Run(ctx)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("grpc serving", "addr", cfg.Server.GRPCAddr)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(drainCtx)
	logger.Info("stopped")
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, func(), error) {
	dsn := cfg.Database.DSN
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		pg, err := repository.OpenPostgres(ctx, repository.Config{
			DSN:             dsn,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	lite, err := repository.OpenSQLite(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return lite, func() { _ = lite.Close() }, nil
}

