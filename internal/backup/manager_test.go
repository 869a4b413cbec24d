package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-intake/internal/config"
	"booking-intake/internal/logger"
	"booking-intake/internal/models"
	"booking-intake/internal/storage"
)

type paths struct {
	primary string
	backup  string
}

func newTestManager(t *testing.T, interval time.Duration) (*Manager, paths) {
	t.Helper()
	dir := t.TempDir()
	p := paths{
		primary: filepath.Join(dir, "bookings.db"),
		backup:  filepath.Join(dir, "bookings_backup.db"),
	}
	m := NewManager(p.primary, config.BackupConfig{Path: p.backup, Interval: interval}, logger.New(io.Discard, "error"))
	return m, p
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestEnsurePrimaryCreatesEmptyStore(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	assert.Equal(t, StateCold, m.State())

	require.NoError(t, m.EnsurePrimary())

	info, err := os.Stat(p.primary)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.Equal(t, StateReady, m.State())
	_, err = os.Stat(p.backup)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsurePrimaryRestoresFromBackup(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	content := []byte("backup contents")
	require.NoError(t, os.WriteFile(p.backup, content, 0o644))

	require.NoError(t, m.EnsurePrimary())

	assert.Equal(t, content, readFile(t, p.primary))
	assert.Equal(t, content, readFile(t, p.backup))
	assert.Equal(t, StateReady, m.State())
}

func TestEnsurePrimaryKeepsExistingPrimary(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("live"), 0o644))
	require.NoError(t, os.WriteFile(p.backup, []byte("stale"), 0o644))

	require.NoError(t, m.EnsurePrimary())

	assert.Equal(t, []byte("live"), readFile(t, p.primary))
}

func TestEnsurePrimaryCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "data", "bookings.db")
	m := NewManager(primary, config.BackupConfig{Path: filepath.Join(dir, "backup.db")}, logger.New(io.Discard, "error"))

	require.NoError(t, m.EnsurePrimary())
	_, err := os.Stat(primary)
	assert.NoError(t, err)
}

func TestEnsurePrimaryFailsWhenUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// The parent of the primary is a regular file, so it cannot be created.
	m := NewManager(filepath.Join(blocker, "bookings.db"), config.BackupConfig{Path: filepath.Join(dir, "b.db")}, logger.New(io.Discard, "error"))

	err := m.EnsurePrimary()
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, StateCold, m.State())
}

func TestEnsurePrimaryRejectsReadOnlyPrimary(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("existing"), 0o444))

	err := m.EnsurePrimary()
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, StateCold, m.State())
}

func TestEnsurePrimaryDiscardsStaleJournalOnRestore(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	journal := p.primary + "-journal"
	require.NoError(t, os.WriteFile(p.backup, []byte("backup contents"), 0o644))
	require.NoError(t, os.WriteFile(journal, []byte("half-written transaction"), 0o644))

	require.NoError(t, m.EnsurePrimary())

	assert.Equal(t, []byte("backup contents"), readFile(t, p.primary))
	_, err := os.Stat(journal)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsurePrimaryKeepsJournalOfExistingPrimary(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	journal := p.primary + "-journal"
	require.NoError(t, os.WriteFile(p.primary, []byte("live"), 0o644))
	require.NoError(t, os.WriteFile(journal, []byte("hot journal"), 0o644))

	require.NoError(t, m.EnsurePrimary())

	assert.Equal(t, []byte("hot journal"), readFile(t, journal))
}

func TestSnapshotCopiesAndOverwrites(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("v1"), 0o644))
	require.NoError(t, m.EnsurePrimary())

	require.NoError(t, m.Snapshot())
	assert.Equal(t, []byte("v1"), readFile(t, p.backup))
	assert.False(t, m.LastSnapshot().IsZero())

	require.NoError(t, os.WriteFile(p.primary, []byte("version two"), 0o644))
	require.NoError(t, m.Snapshot())
	assert.Equal(t, []byte("version two"), readFile(t, p.backup))

	entries, err := os.ReadDir(filepath.Dir(p.backup))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")
}

func TestSnapshotWithoutPrimaryIsNoop(t *testing.T) {
	m, p := newTestManager(t, time.Hour)

	require.NoError(t, m.Snapshot())

	_, err := os.Stat(p.backup)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, m.LastSnapshot().IsZero())
}

func TestSnapshotFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "bookings.db")
	require.NoError(t, os.WriteFile(primary, []byte("data"), 0o644))
	m := NewManager(primary, config.BackupConfig{Path: filepath.Join(dir, "missing", "backup.db")}, logger.New(io.Discard, "error"))

	err := m.Snapshot()
	assert.Error(t, err)
}

func TestSnapshotWaitsForGate(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("data"), 0o644))

	var gate sync.Mutex
	m.Guard(&gate)
	gate.Lock()

	done := make(chan error, 1)
	go func() { done <- m.Snapshot() }()

	select {
	case <-done:
		t.Fatal("snapshot ran while the gate was held")
	case <-time.After(100 * time.Millisecond):
	}

	gate.Unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot did not finish after the gate was released")
	}
	assert.Equal(t, []byte("data"), readFile(t, p.backup))
}

func TestScheduledSnapshotsRun(t *testing.T) {
	m, p := newTestManager(t, time.Second)
	require.NoError(t, os.WriteFile(p.primary, []byte("scheduled"), 0o644))
	require.NoError(t, m.EnsurePrimary())

	require.NoError(t, m.Start())
	require.NoError(t, m.Start(), "second start is a no-op")
	defer m.Shutdown(context.Background())

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(p.backup)
		return err == nil && string(data) == "scheduled"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleSurvivesFailedSnapshot(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "bookings.db")
	backupDir := filepath.Join(dir, "later")
	backupPath := filepath.Join(backupDir, "backup.db")
	require.NoError(t, os.WriteFile(primary, []byte("eventually"), 0o644))

	m := NewManager(primary, config.BackupConfig{Path: backupPath, Interval: time.Second}, logger.New(io.Discard, "error"))
	require.NoError(t, m.EnsurePrimary())
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	// Let at least one run fail on the missing directory.
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, os.MkdirAll(backupDir, 0o755))

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(backupPath)
		return err == nil && string(data) == "eventually"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, StateReady, m.State())
}

func TestShutdownTakesFinalSnapshot(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("final"), 0o644))
	require.NoError(t, m.EnsurePrimary())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))

	assert.Equal(t, []byte("final"), readFile(t, p.backup))
	assert.Equal(t, StateTerminated, m.State())
	assert.ErrorIs(t, m.Snapshot(), ErrTerminated)
	assert.ErrorIs(t, m.Start(), ErrTerminated)
	assert.ErrorIs(t, m.EnsurePrimary(), ErrTerminated)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestShutdownGivesUpOnStuckSnapshot(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("data"), 0o644))

	var gate sync.Mutex
	m.Guard(&gate)
	gate.Lock()

	running := make(chan error, 1)
	go func() { running <- m.Snapshot() }()

	// Wait until the snapshot holds the copy slot and is parked on the gate.
	require.Eventually(t, func() bool { return len(m.copying) == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateTerminated, m.State())

	gate.Unlock()
	select {
	case err := <-running:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("running snapshot did not finish")
	}
	assert.Equal(t, []byte("data"), readFile(t, p.backup))
	assert.ErrorIs(t, m.Snapshot(), ErrTerminated)
}

func TestShutdownWithoutStart(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	require.NoError(t, os.WriteFile(p.primary, []byte("never scheduled"), 0o644))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []byte("never scheduled"), readFile(t, p.backup))
}

func TestBackupFile(t *testing.T) {
	m, p := newTestManager(t, time.Hour)

	_, err := m.BackupFile()
	assert.ErrorIs(t, err, ErrNoBackup)

	require.NoError(t, os.WriteFile(p.primary, []byte("download me"), 0o644))
	require.NoError(t, m.Snapshot())

	data, err := m.BackupFile()
	require.NoError(t, err)
	assert.Equal(t, []byte("download me"), data)
	assert.Equal(t, p.backup, m.BackupPath())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "cold", StateCold.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(9).String())
}

// Records inserted after the last snapshot are lost when the primary is
// lost; everything up to the snapshot comes back.
func TestRestoreAfterPrimaryLossKeepsSnapshottedRecords(t *testing.T) {
	m, p := newTestManager(t, time.Hour)
	log := logger.New(io.Discard, "error")
	ctx := context.Background()

	require.NoError(t, m.EnsurePrimary())
	store, err := storage.NewSQLiteStore(config.DatabaseConfig{Path: p.primary}, log)
	require.NoError(t, err)
	m.Guard(store.SnapshotLocker())

	const snapshotted = 3
	for i := 0; i < snapshotted; i++ {
		require.NoError(t, store.InsertBooking(ctx, &models.Booking{Name: "before", Email: "b@x.com", Subjects: []string{"math"}, Total: 300}))
	}
	require.NoError(t, m.Snapshot())

	require.NoError(t, store.InsertBooking(ctx, &models.Booking{Name: "after", Email: "a@x.com", Subjects: []string{"art"}, Total: 300}))
	require.NoError(t, store.Close())

	require.NoError(t, os.Remove(p.primary))

	restored := NewManager(p.primary, config.BackupConfig{Path: p.backup}, log)
	require.NoError(t, restored.EnsurePrimary())

	reopened, err := storage.NewSQLiteStore(config.DatabaseConfig{Path: p.primary}, log)
	require.NoError(t, err)
	defer reopened.Close()

	bookings, err := reopened.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, snapshotted)
	for _, b := range bookings {
		assert.Equal(t, "before", b.Name)
	}
}
