package cleanup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// SweepArgs is the periodic temp-file sweep job. Generation scratch files
// (partial downloads, thumbnail staging) land in Dir and are deleted once
// older than MaxAge.
type SweepArgs struct {
	Dir    string        `json:"dir"`
	MaxAge time.Duration `json:"max_age"`
}

func (SweepArgs) Kind() string { return "cleanup_sweep_tmp" }

func (SweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		// Sweeps are interchangeable; never queue more than one.
		UniqueOpts: river.UniqueOpts{ByArgs: true, ByState: rivertype.UniqueOptsByStateDefault()},
	}
}

type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	Logger *slog.Logger
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	maxAge := job.Args.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	var removed, failed int
	err := filepath.WalkDir(job.Args.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A missing dir just means nothing to sweep yet.
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				failed++
				w.Logger.Warn("sweep could not remove file", "path", path, "error", rmErr)
			} else {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.Logger.Info("temp file sweep completed",
		"dir", job.Args.Dir, "removed", removed, "failed", failed, "max_age", maxAge.String())
	return nil
}

// PeriodicJob returns the daily sweep schedule for river's periodic runner.
func PeriodicJob(dir string, maxAge time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{Dir: dir, MaxAge: maxAge}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
