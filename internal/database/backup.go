package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Backup periodically copies the reservation database to a side directory
// and prunes copies older than the retention window.
type Backup struct {
	store         *Store
	dbPath        string
	storagePath   string
	interval      time.Duration
	retentionDays int
	logger        *zerolog.Logger
}

func NewBackup(store *Store, dbPath, storagePath string, intervalHours, retentionDays int, logger *zerolog.Logger) *Backup {
	return &Backup{
		store:         store,
		dbPath:        dbPath,
		storagePath:   storagePath,
		interval:      time.Duration(intervalHours) * time.Hour,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled, taking a backup immediately and then
// once per interval.
func (b *Backup) Run(ctx context.Context) {
	b.logger.Info().Str("dir", b.storagePath).Dur("interval", b.interval).Msg("Backup loop started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	if err := b.Snapshot(); err != nil {
		b.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Snapshot(); err != nil {
				b.logger.Error().Err(err).Msg("Scheduled backup failed")
				continue
			}
			b.prune()
		}
	}
}

// Snapshot checkpoints the WAL and copies the database file aside.
func (b *Backup) Snapshot() error {
	if err := os.MkdirAll(b.storagePath, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	// Fold WAL pages back into the main file so a plain copy is consistent.
	if _, err := b.store.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	name := fmt.Sprintf("osteria_%s.db", time.Now().Format("20060102_150405"))
	dst := filepath.Join(b.storagePath, name)

	source, err := os.Open(b.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err = io.Copy(destination, source); err != nil {
		return err
	}

	b.logger.Info().Str("path", dst).Msg("Backup written")
	return nil
}

func (b *Backup) prune() {
	if b.retentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(b.storagePath)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to read backup directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.retentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", file.Name()).Msg("Deleting expired backup")
			os.Remove(filepath.Join(b.storagePath, file.Name()))
		}
	}
}
