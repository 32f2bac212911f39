package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/async"
	"github.com/sheetsnap/sheetsnap/internal/pipeline"
)

// archiveDir is where an inbox file is moved once enqueued. The move is the
// durable dedup record: a restarted daemon must not re-enqueue (and
// re-charge) files it already accepted.
const archiveDir = "processed"

const defaultInterval = 2 * time.Second

// Enqueuer is the queue surface the inbox needs. Satisfied by *async.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job)
}

// Inbox polls a drop folder laid out as <dir>/<userID>/<file> and enqueues
// each file once. A simple poll keeps the daemon free of platform watcher
// quirks for what is a low-rate surface.
type Inbox struct {
	dir      string
	queue    Enqueuer
	logger   *slog.Logger
	interval time.Duration

	// in-session guard against re-reading a file whose archive move failed
	seen map[string]struct{}
}

func NewInbox(dir string, queue Enqueuer, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		dir:      dir,
		queue:    queue,
		logger:   logger,
		interval: defaultInterval,
		seen:     map[string]struct{}{},
	}
}

// Run polls until ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.scan(ctx)
		}
	}
}

// scan performs one pass over the inbox tree.
func (in *Inbox) scan(ctx context.Context) {
	users, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("inbox scan failed", "dir", in.dir, "error", err)
		return
	}
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		userID, err := uuid.Parse(u.Name())
		if err != nil {
			continue
		}
		in.scanUser(ctx, filepath.Join(in.dir, u.Name()), userID)
	}
}

func (in *Inbox) scanUser(ctx context.Context, userDir string, userID uuid.UUID) {
	files, err := os.ReadDir(userDir)
	if err != nil {
		in.logger.Warn("inbox user scan failed", "dir", userDir, "error", err)
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(f.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			continue
		}
		path := filepath.Join(userDir, f.Name())
		if _, done := in.seen[path]; done {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			in.logger.Warn("inbox read failed", "path", path, "error", err)
			continue
		}
		in.queue.Enqueue(ctx, async.Job{Request: pipeline.Request{
			UserID:   userID,
			RawBytes: raw,
			MimeType: constants.DetectMIME(raw, ext),
		}})
		in.seen[path] = struct{}{}
		in.logger.Info("inbox file queued", "path", path, "user_id", userID)

		if err := in.archive(userDir, f.Name()); err != nil {
			in.logger.Error("inbox archive failed, file may repeat after restart",
				"path", path, "error", err)
		}
	}
}

// archive moves an accepted file into the user's processed/ subdirectory so
// it survives restarts as already-handled.
func (in *Inbox) archive(userDir, name string) error {
	dst := filepath.Join(userDir, archiveDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(userDir, name), filepath.Join(dst, name))
}
