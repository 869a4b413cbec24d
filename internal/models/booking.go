package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// SubjectDelimiter joins subjects into the single stored text column.
const SubjectDelimiter = ", "

type Booking struct {
	bun.BaseModel `bun:"table:bookings" json:"-"`

	ID          int64     `json:"id" bun:"id,pk,autoincrement"`
	Name        string    `json:"name" bun:"name,notnull"`
	Email       string    `json:"email" bun:"email,notnull"`
	Subjects    []string  `json:"subjects" bun:"-"`
	SubjectText string    `json:"-" bun:"subjects,notnull"`
	Total       float64   `json:"total" bun:"total,notnull"`
	Timestamp   time.Time `json:"timestamp" bun:"timestamp,notnull"`
}

// SubjectsString is the stored form of Subjects.
func (b *Booking) SubjectsString() string {
	return JoinSubjects(b.Subjects)
}

func JoinSubjects(subjects []string) string {
	return strings.Join(subjects, SubjectDelimiter)
}

func SplitSubjects(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	parts := strings.Split(text, strings.TrimSpace(SubjectDelimiter))
	subjects := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			subjects = append(subjects, p)
		}
	}
	return subjects
}

// SubjectList accepts either a JSON array of strings or a single string,
// matching what a checkbox form produces for one or many selections.
type SubjectList []string

func (s *SubjectList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}

	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("subjects must be a string or an array of strings")
	}
	if one == "" {
		*s = SubjectList{}
		return nil
	}
	*s = SubjectList{one}
	return nil
}

type BookingRequest struct {
	Name     string      `json:"name" form:"name" validate:"required"`
	Email    string      `json:"email" form:"email" validate:"required"`
	Subjects SubjectList `json:"subjects" form:"subjects" validate:"min=1,dive,required"`
}

type BookingResult struct {
	ID    int64   `json:"id"`
	Total float64 `json:"total"`
}

type BookingEvent struct {
	Type      string    `json:"type"`
	BookingID int64     `json:"booking_id"`
	Booking   *Booking  `json:"booking"`
	Timestamp time.Time `json:"timestamp"`
}
