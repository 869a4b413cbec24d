package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"booking-intake/internal/config"
	"booking-intake/internal/logger"
	"booking-intake/internal/storage"
)

var (
	ErrNoBackup   = errors.New("no backup available")
	ErrTerminated = errors.New("backup manager terminated")
)

type State int32

const (
	StateCold State = iota
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Manager owns the primary store file's backup. It restores the primary
// from the backup on a cold start and snapshots primary -> backup on a
// schedule and once more at shutdown.
type Manager struct {
	primary  string
	backup   string
	interval time.Duration
	log      *logger.Logger

	// copying holds one token while a restore or snapshot touches the files.
	copying chan struct{}
	state   atomic.Int32

	mu           sync.Mutex
	gate         sync.Locker
	stopping     bool
	scheduler    *cron.Cron
	lastSnapshot time.Time
}

func NewManager(primaryPath string, cfg config.BackupConfig, log *logger.Logger) *Manager {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Manager{
		primary:  primaryPath,
		backup:   cfg.Path,
		interval: interval,
		log:      log,
		copying:  make(chan struct{}, 1),
	}
}

// Guard sets the lock held while the primary file is copied. Pass the
// store's snapshot locker so a copy never overlaps a write.
func (m *Manager) Guard(gate sync.Locker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) BackupPath() string {
	return m.backup
}

func (m *Manager) LastSnapshot() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnapshot
}

// EnsurePrimary makes sure a primary file exists before the store opens it,
// restoring it from the backup when one is available. Failures wrap
// storage.ErrStoreUnavailable.
func (m *Manager) EnsurePrimary() error {
	m.copying <- struct{}{}
	defer m.release()

	if m.State() == StateTerminated {
		return ErrTerminated
	}

	present, err := exists(m.primary)
	if err != nil {
		return fmt.Errorf("%w: stat primary: %w", storage.ErrStoreUnavailable, err)
	}
	if present {
		if err := checkWritable(m.primary); err != nil {
			m.log.Error("BACKUP", fmt.Sprintf("Primary store %s is not writable: %s", m.primary, err.Error()))
			return fmt.Errorf("%w: primary not writable: %w", storage.ErrStoreUnavailable, err)
		}
		m.log.LogBackup("READY", fmt.Sprintf("Primary store %s present", m.primary))
		m.state.Store(int32(StateReady))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.primary), 0o755); err != nil {
		return fmt.Errorf("%w: create store dir: %w", storage.ErrStoreUnavailable, err)
	}

	hasBackup, err := exists(m.backup)
	if err != nil {
		return fmt.Errorf("%w: stat backup: %w", storage.ErrStoreUnavailable, err)
	}

	if hasBackup {
		// A journal left by the lost primary would be replayed onto the
		// restored file when SQLite opens it.
		if err := removeStaleJournal(m.primary); err != nil {
			m.log.Error("BACKUP", "Cannot remove stale journal: "+err.Error())
			return fmt.Errorf("%w: remove stale journal: %w", storage.ErrStoreUnavailable, err)
		}

		m.log.LogBackup("RESTORE", fmt.Sprintf("Primary store missing, restoring from %s", m.backup))
		if err := copyFile(m.backup, m.primary); err != nil {
			m.log.Error("BACKUP", "Restore failed: "+err.Error())
			return fmt.Errorf("%w: restore from backup: %w", storage.ErrStoreUnavailable, err)
		}
		m.log.LogBackup("RESTORED", fmt.Sprintf("Primary store %s restored from backup", m.primary))
	} else {
		m.log.LogBackup("CREATE", fmt.Sprintf("No primary or backup found, creating empty store at %s", m.primary))
		f, err := os.OpenFile(m.primary, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("%w: create primary: %w", storage.ErrStoreUnavailable, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("%w: create primary: %w", storage.ErrStoreUnavailable, err)
		}
	}

	m.state.Store(int32(StateReady))
	return nil
}

// Snapshot copies the primary file over the backup. A missing primary is
// not an error.
func (m *Manager) Snapshot() error {
	if m.State() == StateTerminated {
		return ErrTerminated
	}

	m.copying <- struct{}{}
	defer m.release()

	if m.State() == StateTerminated {
		return ErrTerminated
	}
	return m.snapshot()
}

// snapshot does the copy. The caller holds the copying token.
func (m *Manager) snapshot() error {
	present, err := exists(m.primary)
	if err != nil {
		m.log.Error("BACKUP", "Cannot stat primary store: "+err.Error())
		return fmt.Errorf("stat primary: %w", err)
	}
	if !present {
		m.log.Warn("BACKUP", fmt.Sprintf("Primary store %s missing, skipping snapshot", m.primary))
		return nil
	}

	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		gate.Lock()
		defer gate.Unlock()
	}

	start := time.Now()
	if err := copyFile(m.primary, m.backup); err != nil {
		m.log.Error("BACKUP", fmt.Sprintf("Snapshot to %s failed: %s", m.backup, err.Error()))
		return fmt.Errorf("snapshot: %w", err)
	}

	m.mu.Lock()
	m.lastSnapshot = time.Now()
	m.mu.Unlock()

	m.log.LogBackup("SNAPSHOT", fmt.Sprintf("Store copied to %s in %s", m.backup, time.Since(start)))
	return nil
}

func (m *Manager) release() {
	<-m.copying
}

// scheduledSnapshot is the cron job. Failures were already logged and must
// not stop the schedule.
func (m *Manager) scheduledSnapshot() {
	if err := m.Snapshot(); err != nil && !errors.Is(err, ErrTerminated) {
		m.log.Warn("BACKUP", "Scheduled snapshot missed, will retry next interval")
	}
}

// Start schedules a snapshot every configured interval.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping || m.State() == StateTerminated {
		return ErrTerminated
	}
	if m.scheduler != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.interval), m.scheduledSnapshot); err != nil {
		return fmt.Errorf("schedule backups: %w", err)
	}
	c.Start()
	m.scheduler = c

	m.log.LogBackup("SCHEDULE", fmt.Sprintf("Snapshotting %s every %s", m.primary, m.interval))
	return nil
}

// Shutdown stops the schedule and takes the final snapshot. Waiting for a
// snapshot already in progress is bounded by ctx. If ctx ends first, the
// final snapshot is skipped and ctx's error is returned; the running copy
// still completes on its own. Further calls are no-ops.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping || m.State() == StateTerminated {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	scheduler := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			m.log.Warn("BACKUP", "Timed out waiting for running snapshot")
		}
	}

	if err := m.acquire(ctx); err != nil {
		m.state.Store(int32(StateTerminated))
		m.log.Error("BACKUP", "Final snapshot skipped, a snapshot is still running: "+err.Error())
		return fmt.Errorf("final snapshot: %w", err)
	}

	m.log.LogBackup("FINAL", "Taking final snapshot before exit")
	err := m.snapshot()
	m.state.Store(int32(StateTerminated))
	m.release()
	return err
}

// acquire takes the copying token, preferring it over an expired ctx.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.copying <- struct{}{}:
		return nil
	default:
	}

	select {
	case m.copying <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackupFile returns the current backup contents.
func (m *Manager) BackupFile() ([]byte, error) {
	data, err := os.ReadFile(m.backup)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}

func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

func removeStaleJournal(primary string) error {
	err := os.Remove(primary + "-journal")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// copyFile writes src to a temp file beside dst and renames it into place,
// so readers of dst see either the old or the new copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
