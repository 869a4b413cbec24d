package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-intake/internal/models"
	"booking-intake/internal/services"
	"booking-intake/internal/utils"
)

type BookingHandler struct {
	bookingService *services.BookingService
}

func NewBookingHandler(bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
	}
}

// SubmitBooking accepts form posts from the booking page and JSON bodies.
func (h *BookingHandler) SubmitBooking(c *gin.Context) {
	var req models.BookingRequest

	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	result, err := h.bookingService.SubmitBooking(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Validation failed", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Booking failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Booking successful!", result))
}

// ListBookings returns every booking, newest first, as a bare JSON array.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	bookings, err := h.bookingService.ListBookings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Error retrieving bookings", err.Error()))
		return
	}

	c.JSON(http.StatusOK, bookings)
}
