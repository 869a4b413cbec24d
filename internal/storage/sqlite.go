package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"booking-intake/internal/config"
	"booking-intake/internal/logger"
	"booking-intake/internal/models"
)

const schemaVersion = 1

// SQLiteStore keeps bookings in a single SQLite file. The file is opened in
// rollback-journal mode with one connection, so every committed insert is
// complete in the main file once InsertBooking returns.
type SQLiteStore struct {
	db   *bun.DB
	path string
	mu   sync.RWMutex
	log  *logger.Logger
	now  func() time.Time
}

func NewSQLiteStore(cfg config.DatabaseConfig, log *logger.Logger) (*SQLiteStore, error) {
	log.LogDatabase("CONNECT", "sqlite", fmt.Sprintf("Opening SQLite database at %s", cfg.Path))

	dsn := fmt.Sprintf("file:%s?_journal_mode=DELETE&_busy_timeout=5000", cfg.Path)
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open SQLite database: "+err.Error())
		return nil, fmt.Errorf("%w: open database: %w", ErrStoreUnavailable, err)
	}
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		log.Error("DATABASE", "Failed to ping SQLite: "+err.Error())
		return nil, fmt.Errorf("%w: ping database: %w", ErrStoreUnavailable, err)
	}

	store := &SQLiteStore{
		db:   bun.NewDB(sqldb, sqlitedialect.New()),
		path: cfg.Path,
		log:  log,
		now:  time.Now,
	}

	if err := store.initTables(context.Background()); err != nil {
		store.db.Close()
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("%w: initialize tables: %w", ErrStoreUnavailable, err)
	}

	// go-sqlite3 falls back to read-only when the file can't be written,
	// and nothing above needs a write once the table exists.
	if err := store.checkWritable(context.Background()); err != nil {
		store.db.Close()
		log.Error("DATABASE", "SQLite database is not writable: "+err.Error())
		return nil, fmt.Errorf("%w: database not writable: %w", ErrStoreUnavailable, err)
	}

	log.LogDatabase("SUCCESS", "sqlite", "SQLite database opened and tables initialized")
	return store, nil
}

func (s *SQLiteStore) initTables(ctx context.Context) error {
	s.log.LogDatabase("MIGRATE", "sqlite", "Creating bookings table if not exists")

	_, err := s.db.NewCreateTable().
		Model((*models.Booking)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create bookings table: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "sqlite", "Bookings table ready")
	return nil
}

// checkWritable stamps the schema version inside a transaction, which needs
// both the database file and its journal to be writable.
func (s *SQLiteStore) checkWritable(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		return err
	})
}

func (s *SQLiteStore) InsertBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking.ID = 0
	booking.SubjectText = booking.SubjectsString()
	booking.Timestamp = s.now().UTC()

	s.log.LogDatabase("INSERT", "sqlite", fmt.Sprintf("Saving booking for %s", booking.Email))

	if _, err := s.db.NewInsert().Model(booking).Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save booking for %s: %s", booking.Email, err.Error()))
		return fmt.Errorf("%w: insert booking: %w", ErrPersistence, err)
	}

	s.log.LogDatabase("SUCCESS", "sqlite", fmt.Sprintf("Booking %d saved successfully", booking.ID))
	return nil
}

func (s *SQLiteStore) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.log.LogDatabase("SELECT", "sqlite", "Listing all bookings")

	bookings := make([]*models.Booking, 0)
	err := s.db.NewSelect().
		Model(&bookings).
		Order("timestamp DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list bookings: %s", err.Error()))
		return nil, fmt.Errorf("%w: list bookings: %w", ErrPersistence, err)
	}

	for _, b := range bookings {
		b.Subjects = models.SplitSubjects(b.SubjectText)
	}

	s.log.LogDatabase("SUCCESS", "sqlite", fmt.Sprintf("Listed %d bookings", len(bookings)))
	return bookings, nil
}

// SnapshotLocker is held by file-level copies of the database. It shares
// the read side of the store lock, so copies run alongside reads but never
// during an insert.
func (s *SQLiteStore) SnapshotLocker() sync.Locker {
	return s.mu.RLocker()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	s.log.LogDatabase("CLOSE", "sqlite", "Closing SQLite database")
	return s.db.Close()
}
