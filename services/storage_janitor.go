package services

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
)

// StorageJanitor deletes async upload files that no worker picked up, for
// example after a task was archived.
type StorageJanitor struct {
	dir       string
	retention time.Duration
	scheduler *gocron.Scheduler
	log       *slog.Logger
}

func NewStorageJanitor(dir string, retention time.Duration, log *slog.Logger) *StorageJanitor {
	if log == nil {
		log = slog.Default()
	}
	return &StorageJanitor{
		dir:       dir,
		retention: retention,
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log.With("component", "storage_janitor", "dir", dir),
	}
}

// Start sweeps every interval until Stop.
func (j *StorageJanitor) Start(interval time.Duration) error {
	_, err := j.scheduler.Every(interval).Tag("storage-janitor").SingletonMode().Do(func() {
		removed, err := j.Sweep(time.Now())
		if err != nil {
			j.log.Warn("storage sweep failed", "error", err)
			return
		}
		if removed > 0 {
			j.log.Info("storage sweep removed stale uploads", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule storage janitor: %w", err)
	}
	j.scheduler.StartAsync()
	return nil
}

func (j *StorageJanitor) Stop() {
	j.scheduler.Stop()
}

// Sweep removes regular files under dir last modified before now-retention.
func (j *StorageJanitor) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-j.retention)
	removed := 0
	err := filepath.WalkDir(j.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
