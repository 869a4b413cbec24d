package storage

import (
	"context"
	"errors"

	"booking-intake/internal/models"
)

var (
	// ErrStoreUnavailable means the store file could not be opened or created.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPersistence means a read or write against an open store failed.
	ErrPersistence = errors.New("persistence error")
)

// Store is an append-only booking table. InsertBooking assigns ID and
// Timestamp on the passed record.
type Store interface {
	InsertBooking(ctx context.Context, booking *models.Booking) error
	ListBookings(ctx context.Context) ([]*models.Booking, error)
}
