package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "shelf_"

// Backups writes periodic snapshots of the database and prunes old ones.
type Backups struct {
	db        *DB
	dir       string
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewBackups keeps snapshots in dir. retentionDays <= 0 keeps them all.
func (db *DB) NewBackups(dir string, retentionDays int, logger zerolog.Logger) *Backups {
	return &Backups{
		db:        db,
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With().Str("component", "backup").Logger(),
	}
}

// Run takes a snapshot immediately and then every interval until ctx is done.
func (b *Backups) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	b.logger.Info().Dur("interval", interval).Str("dir", b.dir).Msg("backup job started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := b.Backup(ctx); err != nil {
			b.logger.Error().Err(err).Msg("backup failed")
		}
		if err := b.Prune(); err != nil {
			b.logger.Error().Err(err).Msg("backup cleanup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Backup writes a consistent copy of the database with VACUUM INTO and
// returns its path.
func (b *Backups) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(b.dir, backupPrefix+b.now().UTC().Format("20060102_150405")+".db")
	if _, err := b.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	b.logger.Info().Str("path", path).Msg("backup written")
	return path, nil
}

// Prune removes snapshots older than the retention period.
func (b *Backups) Prune() error {
	if b.retention <= 0 {
		return nil
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	cutoff := b.now().Add(-b.retention)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil {
			b.logger.Warn().Err(err).Str("file", e.Name()).Msg("delete old backup failed")
			continue
		}
		b.logger.Info().Str("file", e.Name()).Msg("old backup deleted")
	}
	return nil
}
