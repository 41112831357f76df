package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riverqueue/river"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFileAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepRemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeFileAged(t, dir, "stale.png", 30*time.Hour)
	fresh := writeFileAged(t, dir, "fresh.png", 1*time.Hour)

	w := &SweepWorker{Logger: testLogger()}
	job := &river.Job[SweepArgs]{Args: SweepArgs{Dir: dir, MaxAge: 24 * time.Hour}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("stale file should be gone, stat err: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file should survive: %v", err)
	}
}

func TestSweepWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "thumbs")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	old := writeFileAged(t, sub, "stale.jpg", 48*time.Hour)

	w := &SweepWorker{Logger: testLogger()}
	job := &river.Job[SweepArgs]{Args: SweepArgs{Dir: dir, MaxAge: 24 * time.Hour}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("nested stale file should be gone, stat err: %v", err)
	}
	if _, err := os.Stat(sub); err != nil {
		t.Errorf("directories are kept: %v", err)
	}
}

// Both periodic jobs dedupe on insert so a slow run never stacks a second
// copy behind itself.
func TestPeriodicJobsQueueUniquely(t *testing.T) {
	for _, tc := range []struct {
		kind string
		opts river.InsertOpts
	}{
		{SweepArgs{}.Kind(), SweepArgs{}.InsertOpts()},
		{ReconcileArgs{}.Kind(), ReconcileArgs{}.InsertOpts()},
	} {
		if !tc.opts.UniqueOpts.ByArgs {
			t.Errorf("%s: must dedupe by args", tc.kind)
		}
		if len(tc.opts.UniqueOpts.ByState) == 0 {
			t.Errorf("%s: must dedupe across pending states", tc.kind)
		}
	}
}

func TestSweepMissingDirIsNoop(t *testing.T) {
	w := &SweepWorker{Logger: testLogger()}
	job := &river.Job[SweepArgs]{Args: SweepArgs{Dir: filepath.Join(t.TempDir(), "absent"), MaxAge: time.Hour}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
}
