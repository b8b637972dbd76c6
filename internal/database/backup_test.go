package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"korty/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupRunner(t *testing.T) {
	db := newTestDB(t)
	seedBooking(t, db, "court-1", time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))

	storagePath := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.Nop()
	runner := NewBackupRunner(db, "", config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 7,
	}, &logger)

	t.Run("SnapshotCarriesData", func(t *testing.T) {
		path, err := runner.Run(context.Background())
		require.NoError(t, err)
		require.FileExists(t, path)

		snapshot, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		defer snapshot.Close()

		var count int
		require.NoError(t, snapshot.QueryRow("SELECT COUNT(*) FROM bookings").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("PruneKeepsRecentSnapshots", func(t *testing.T) {
		stale := filepath.Join(storagePath, "korty_20200101_000000.db")
		require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
		old := time.Now().AddDate(0, 0, -30)
		require.NoError(t, os.Chtimes(stale, old, old))

		runner.Prune()

		assert.NoFileExists(t, stale)
		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("PruneDisabledByZeroRetention", func(t *testing.T) {
		keep := NewBackupRunner(db, "", config.BackupConfig{StoragePath: storagePath}, &logger)
		stale := filepath.Join(storagePath, "korty_20200102_000000.db")
		require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
		old := time.Now().AddDate(0, 0, -30)
		require.NoError(t, os.Chtimes(stale, old, old))

		keep.Prune()

		assert.FileExists(t, stale)
	})
}

func TestBackupRunnerDisabled(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	runner := NewBackupRunner(db, "", config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Returns immediately without touching the filesystem.
	runner.Start(ctx)
}
