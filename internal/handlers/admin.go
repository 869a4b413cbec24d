package handlers

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"booking-intake/internal/backup"
	"booking-intake/internal/models"
	"booking-intake/internal/services"
	"booking-intake/internal/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	adminTemplate  = "admin.html"
	exportFilename = "bookings.csv"
	backupFilename = "bookings_backup.db"
	timeLayout     = "2006-01-02 15:04:05"
)

var csvHeader = []string{"ID", "Name", "Email", "Subjects", "Total", "Timestamp"}

// Templates parses the admin page templates for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"joinSubjects": models.JoinSubjects,
		"formatTotal":  formatTotal,
		"formatTime":   formatTime,
	}).ParseFS(templateFS, "templates/*.html"))
}

// BackupSource hands out the latest backup file.
type BackupSource interface {
	BackupFile() ([]byte, error)
}

type AdminHandler struct {
	bookingService *services.BookingService
	backups        BackupSource
}

func NewAdminHandler(bookingService *services.BookingService, backups BackupSource) *AdminHandler {
	return &AdminHandler{
		bookingService: bookingService,
		backups:        backups,
	}
}

func (h *AdminHandler) BookingsPage(c *gin.Context) {
	bookings, err := h.bookingService.ListBookings(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, "Error retrieving bookings.")
		return
	}

	c.HTML(http.StatusOK, adminTemplate, gin.H{
		"Bookings": bookings,
	})
}

func (h *AdminHandler) ExportCSV(c *gin.Context) {
	bookings, err := h.bookingService.ListBookings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Error retrieving bookings", err.Error()))
		return
	}

	data, err := encodeBookingsCSV(bookings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to write CSV", err.Error()))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (h *AdminHandler) DownloadBackup(c *gin.Context) {
	data, err := h.backups.BackupFile()
	if err != nil {
		if errors.Is(err, backup.ErrNoBackup) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("No backup available yet", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to read backup", err.Error()))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backupFilename))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func encodeBookingsCSV(bookings []*models.Booking) ([]byte, error) {
	var b bytes.Buffer
	w := csv.NewWriter(&b)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, booking := range bookings {
		row := []string{
			strconv.FormatInt(booking.ID, 10),
			csvSafe(booking.Name),
			csvSafe(booking.Email),
			csvSafe(models.JoinSubjects(booking.Subjects)),
			formatTotal(booking.Total),
			formatTime(booking.Timestamp),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// csvSafe stops spreadsheet applications from evaluating user input as a formula.
func csvSafe(value string) string {
	if value != "" && strings.ContainsRune("=+-@", rune(value[0])) {
		return "'" + value
	}
	return value
}

func formatTotal(total float64) string {
	return strconv.FormatFloat(total, 'f', 2, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
