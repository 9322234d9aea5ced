package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/workinghours"
)

func TestBackupSnapshotsDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveWorkingHours(ctx, &workinghours.WorkingHours{
		OrganizationID: "org-1",
		Enabled:        true,
		Weekly:         workinghours.DefaultWeeklySchedule(),
	}))

	b := db.NewBackups(filepath.Join(t.TempDir(), "backups"), 7, zerolog.Nop())
	path, err := b.Backup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	snap, err := Open(path)
	require.NoError(t, err)
	defer snap.Close()
	wh, err := snap.GetWorkingHours(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, wh.Enabled)
}

func TestPruneRemovesExpiredBackups(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	b := db.NewBackups(dir, 7, zerolog.Nop())

	old := filepath.Join(dir, "shelf_20000101_000000.db")
	fresh := filepath.Join(dir, "shelf_20990101_000000.db")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	require.NoError(t, b.Prune())
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
