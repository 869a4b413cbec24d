package notify

import (
	"fmt"
	"html"
	"strings"

	"booking-intake/internal/logger"
	"booking-intake/internal/models"
)

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// EmailNotifier renders the booking confirmation mail. Delivery is not
// wired up; the rendered message is logged.
type EmailNotifier struct {
	from string
	log  *logger.Logger
}

func NewEmailNotifier(from string, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{from: from, log: log}
}

func (n *EmailNotifier) BookingCreated(booking *models.Booking) error {
	if strings.TrimSpace(booking.Email) == "" {
		return fmt.Errorf("booking %d has no recipient", booking.ID)
	}

	msg := n.Confirmation(booking)
	n.log.Info("EMAIL", fmt.Sprintf("Confirmation for booking %d to %s: %q (delivery disabled)", booking.ID, msg.To, msg.Subject))
	n.log.Debug("EMAIL", msg.HTML)
	return nil
}

func (n *EmailNotifier) Confirmation(booking *models.Booking) Message {
	items := make([]string, 0, len(booking.Subjects))
	for _, s := range booking.Subjects {
		items = append(items, "<li>"+html.EscapeString(s)+"</li>")
	}

	body := fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 500px; margin: auto; padding: 20px;">
	<h2>Booking confirmed</h2>
	<p>Hi %s, thanks for your booking (reference #%d).</p>
	<ul>%s</ul>
	<p><b>Total:</b> %.2f</p>
</div>`,
		html.EscapeString(booking.Name), booking.ID, strings.Join(items, ""), booking.Total)

	return Message{
		From:    n.from,
		To:      booking.Email,
		Subject: fmt.Sprintf("Your booking #%d is confirmed", booking.ID),
		HTML:    body,
	}
}
