package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"booking-intake/internal/logger"
	"booking-intake/internal/models"
	"booking-intake/internal/storage"
)

// UnitPrice is charged once per selected subject.
const UnitPrice = 300.0

var ErrValidation = errors.New("validation failed")

// Notifier is told about every booking after it has been stored. Calls run
// in their own goroutine and their errors are only logged.
type Notifier interface {
	BookingCreated(booking *models.Booking) error
}

type BookingService struct {
	store     storage.Store
	notifiers []Notifier
	log       *logger.Logger
	validate  *validator.Validate
	pending   sync.WaitGroup
}

func NewBookingService(store storage.Store, log *logger.Logger, notifiers ...Notifier) *BookingService {
	return &BookingService{
		store:     store,
		notifiers: notifiers,
		log:       log,
		validate:  validator.New(),
	}
}

func CalculateTotal(subjects []string) float64 {
	return float64(len(subjects)) * UnitPrice
}

func (s *BookingService) SubmitBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResult, error) {
	req = normalizeRequest(req)

	if err := s.validateRequest(req); err != nil {
		s.log.LogBooking("REJECTED", "new", err.Error())
		return nil, err
	}

	booking := &models.Booking{
		Name:     req.Name,
		Email:    req.Email,
		Subjects: []string(req.Subjects),
		Total:    CalculateTotal(req.Subjects),
	}

	s.log.LogBooking("INIT", "new", fmt.Sprintf("Booking %d subject(s) for %s, total %.2f",
		len(booking.Subjects), booking.Email, booking.Total))

	if err := s.store.InsertBooking(ctx, booking); err != nil {
		s.log.Error("BOOKING", fmt.Sprintf("Failed to store booking for %s: %v", booking.Email, err))
		return nil, err
	}

	id := fmt.Sprintf("%d", booking.ID)
	s.log.LogBooking("CREATED", id, fmt.Sprintf("Booking stored at %s", booking.Timestamp.Format("2006-01-02 15:04:05")))

	s.notify(booking)

	return &models.BookingResult{
		ID:    booking.ID,
		Total: booking.Total,
	}, nil
}

func (s *BookingService) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		s.log.Error("BOOKING", "Failed to list bookings: "+err.Error())
		return nil, err
	}
	return bookings, nil
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (s *BookingService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BookingService) notify(booking *models.Booking) {
	for _, n := range s.notifiers {
		s.pending.Add(1)
		go func(n Notifier) {
			defer s.pending.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("NOTIFY", fmt.Sprintf("Notifier panicked for booking %d: %v", booking.ID, r))
				}
			}()

			if err := n.BookingCreated(booking); err != nil {
				s.log.Warn("NOTIFY", fmt.Sprintf("Notification for booking %d failed: %v", booking.ID, err))
			}
		}(n)
	}
}

func normalizeRequest(req *models.BookingRequest) *models.BookingRequest {
	if req == nil {
		return &models.BookingRequest{Subjects: models.SubjectList{}}
	}

	subjects := make(models.SubjectList, 0, len(req.Subjects))
	for _, subject := range req.Subjects {
		if subject = strings.TrimSpace(subject); subject != "" {
			subjects = append(subjects, subject)
		}
	}

	return &models.BookingRequest{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Subjects: subjects,
	}
}

func (s *BookingService) validateRequest(req *models.BookingRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "min":
			problems = append(problems, field+" must include at least one entry")
		default:
			problems = append(problems, field+" is required")
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
}
