package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"korty/internal/config"

	"github.com/rs/zerolog"
)

// BackupRunner snapshots the live database on a schedule. VACUUM INTO runs
// over the open handle, so the copy is consistent without pausing writers;
// a plain file copy is the fallback for sqlite builds that lack it.
type BackupRunner struct {
	db     *DB
	dbPath string
	cfg    config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupRunner(db *DB, dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupRunner {
	return &BackupRunner{db: db, dbPath: dbPath, cfg: cfg, logger: logger}
}

func (r *BackupRunner) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		r.logger.Info().Msg("backups disabled")
		return
	}

	interval := 24 * time.Hour
	if r.cfg.IntervalHours > 0 {
		interval = time.Duration(r.cfg.IntervalHours) * time.Hour
	}
	r.logger.Info().
		Dur("interval", interval).
		Str("storage_path", r.cfg.StoragePath).
		Msg("backup runner started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *BackupRunner) runOnce(ctx context.Context) {
	path, err := r.Run(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("backup failed")
		return
	}
	r.logger.Info().Str("path", path).Msg("backup written")
	r.Prune()
}

// Run writes one timestamped snapshot and returns its path.
func (r *BackupRunner) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("korty_%s.db", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(r.cfg.StoragePath, name)

	// VACUUM INTO takes no bind parameters; single quotes in the path are
	// doubled per SQL string rules.
	escaped := strings.ReplaceAll(path, "'", "''")
	if _, err := r.db.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
		r.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying the file instead")
		if copyErr := r.copyFile(path); copyErr != nil {
			return "", copyErr
		}
	}
	return path, nil
}

// copyFile is not a consistent snapshot under concurrent writes; it only
// runs when VACUUM INTO is unavailable.
func (r *BackupRunner) copyFile(path string) error {
	source, err := os.Open(r.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(path)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	return err
}

// Prune removes snapshots older than the retention window.
func (r *BackupRunner) Prune() {
	if r.cfg.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(r.cfg.StoragePath)
	if err != nil {
		r.logger.Error().Err(err).Msg("read backup directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -r.cfg.RetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			r.logger.Info().Str("file", file.Name()).Msg("pruning old backup")
			_ = os.Remove(filepath.Join(r.cfg.StoragePath, file.Name()))
		}
	}
}
