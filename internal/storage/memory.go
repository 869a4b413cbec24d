package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking-intake/internal/models"
)

type InMemoryStore struct {
	bookings []*models.Booking
	nextID   int64
	mutex    sync.RWMutex
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID: 1,
		now:    time.Now,
	}
}

func (s *InMemoryStore) InsertBooking(ctx context.Context, booking *models.Booking) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	booking.ID = s.nextID
	booking.Timestamp = s.now().UTC()
	booking.SubjectText = booking.SubjectsString()
	s.nextID++

	stored := *booking
	stored.Subjects = append([]string(nil), booking.Subjects...)
	s.bookings = append(s.bookings, &stored)
	return nil
}

func (s *InMemoryStore) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	bookings := make([]*models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		c := *b
		c.Subjects = append([]string(nil), b.Subjects...)
		bookings = append(bookings, &c)
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Timestamp.Equal(bookings[j].Timestamp) {
			return bookings[i].ID > bookings[j].ID
		}
		return bookings[i].Timestamp.After(bookings[j].Timestamp)
	})
	return bookings, nil
}
