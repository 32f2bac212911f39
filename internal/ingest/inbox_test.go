package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/async"
)

type captureQueue struct {
	jobs []async.Job
}

func (q *captureQueue) Enqueue(_ context.Context, job async.Job) {
	q.jobs = append(q.jobs, job)
}

// minimal valid PNG header so MIME sniffing resolves to image/png
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func seedInbox(t *testing.T) (dir string, userID uuid.UUID) {
	t.Helper()
	dir = t.TempDir()
	userID = uuid.New()
	userDir := filepath.Join(dir, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatalf("mkdir user dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "scan.png"), pngHeader, 0o644); err != nil {
		t.Fatalf("write scan.png: %v", err)
	}
	return dir, userID
}

func TestScanEnqueuesAndArchives(t *testing.T) {
	ctx := context.Background()
	dir, userID := seedInbox(t)
	queue := &captureQueue{}

	inbox := NewInbox(dir, queue, nil)
	inbox.scan(ctx)

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Request.UserID != userID {
		t.Fatalf("UserID = %s, want %s", job.Request.UserID, userID)
	}
	if job.Request.MimeType != "image/png" {
		t.Fatalf("MimeType = %q", job.Request.MimeType)
	}

	userDir := filepath.Join(dir, userID.String())
	if _, err := os.Stat(filepath.Join(userDir, "scan.png")); !os.IsNotExist(err) {
		t.Fatalf("original file still present (stat err = %v)", err)
	}
	if _, err := os.Stat(filepath.Join(userDir, archiveDir, "scan.png")); err != nil {
		t.Fatalf("archived copy missing: %v", err)
	}
}

// An accepted file must never be billed twice: once archived it stays
// invisible to later scans, including scans by a freshly started inbox.
func TestArchivedFileNotRequeuedAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir, _ := seedInbox(t)

	first := &captureQueue{}
	NewInbox(dir, first, nil).scan(ctx)
	if len(first.jobs) != 1 {
		t.Fatalf("first scan enqueued %d jobs, want 1", len(first.jobs))
	}

	// same inbox scans again: nothing new
	second := &captureQueue{}
	restarted := NewInbox(dir, second, nil)
	restarted.scan(ctx)
	restarted.scan(ctx)
	if len(second.jobs) != 0 {
		t.Fatalf("restarted inbox re-enqueued %d jobs, want 0", len(second.jobs))
	}
}

func TestScanSkipsUnsupportedAndForeignEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	userID := uuid.New()
	userDir := filepath.Join(dir, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// not an accepted extension
	if err := os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// directory that is not a user id
	if err := os.MkdirAll(filepath.Join(dir, "lost+found"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// stray file at the top level
	if err := os.WriteFile(filepath.Join(dir, "readme.png"), pngHeader, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	queue := &captureQueue{}
	NewInbox(dir, queue, nil).scan(ctx)
	if len(queue.jobs) != 0 {
		t.Fatalf("enqueued %d jobs from unsupported entries, want 0", len(queue.jobs))
	}
	if _, err := os.Stat(filepath.Join(userDir, "notes.txt")); err != nil {
		t.Fatalf("skipped file was moved: %v", err)
	}
}
