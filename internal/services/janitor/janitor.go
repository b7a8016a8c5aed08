// -----------------------------------------------------------------------
// Janitor - scheduled sweep of stale media artifacts
// -----------------------------------------------------------------------

package janitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/pipeline"
)

// ActiveJobs reports the jobs that currently own a worker
type ActiveJobs interface {
	ActiveJobIDs() []string
}

// SweepResult summarises one sweep
type SweepResult struct {
	Scanned int
	Removed int
	Kept    int // Stale but owned by an active job
	Freed   int64
}

// Janitor removes artifacts older than maxAge. Temp artifacts carry their
// job id as a prefix and are kept while that job is active. Uploads are only
// read during acquisition, which is bounded by the command timeout, so age
// alone decides for them.
type Janitor struct {
	tempDir   string
	uploadDir string
	maxAge    time.Duration
	schedule  string
	active    ActiveJobs
	cron      *cron.Cron
	sweepMu   sync.Mutex // Prevents overlapping sweeps
	mu        sync.Mutex // Protects running
	running   bool
	now       func() time.Time
	logger    arbor.ILogger
}

// NewJanitor creates a janitor from the [janitor] and [storage.filesystem] config
func NewJanitor(config *common.Config, active ActiveJobs, logger arbor.ILogger) *Janitor {
	return &Janitor{
		tempDir:   config.Storage.Filesystem.TempDir,
		uploadDir: config.Storage.Filesystem.UploadDir,
		maxAge:    common.ParseDuration(config.Janitor.MaxAge, 24*time.Hour),
		schedule:  config.Janitor.Schedule,
		active:    active,
		cron:      cron.New(),
		now:       time.Now,
		logger:    logger,
	}
}

// Start registers the sweep on the configured schedule
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}
	if err := common.ValidateSchedule(j.schedule); err != nil {
		return err
	}

	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunNow(); err != nil {
			j.logger.Warn().Err(err).Msg("Artifact sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info().
		Str("schedule", j.schedule).
		Dur("max_age", j.maxAge).
		Msg("Janitor started")

	return nil
}

// Stop halts the schedule and waits for a sweep in progress
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}

	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info().Msg("Janitor stopped")
}

// RunNow sweeps the temp and upload directories once
func (j *Janitor) RunNow() (*SweepResult, error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	start := j.now()
	cutoff := start.Add(-j.maxAge)

	active := make([]string, 0)
	if j.active != nil {
		for _, id := range j.active.ActiveJobIDs() {
			active = append(active, pipeline.ArtifactPrefix(id))
		}
	}

	result := &SweepResult{}
	if err := j.sweep(j.tempDir, cutoff, active, result); err != nil {
		return result, err
	}
	if err := j.sweep(j.uploadDir, cutoff, nil, result); err != nil {
		return result, err
	}

	if result.Removed > 0 || result.Kept > 0 {
		j.logger.Info().
			Int("scanned", result.Scanned).
			Int("removed", result.Removed).
			Int("kept_active", result.Kept).
			Int64("freed_bytes", result.Freed).
			Msg("Artifact sweep completed")
	} else {
		j.logger.Debug().Int("scanned", result.Scanned).Msg("Artifact sweep found nothing to remove")
	}

	return result, nil
}

func (j *Janitor) sweep(dir string, cutoff time.Time, protected []string, result *SweepResult) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result.Scanned++

		if !info.ModTime().Before(cutoff) {
			continue
		}
		if hasAnyPrefix(entry.Name(), protected) {
			result.Kept++
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove stale artifact")
			continue
		}
		result.Removed++
		result.Freed += info.Size()
	}

	return nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
