package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"booking-intake/internal/backup"
	"booking-intake/internal/config"
	"booking-intake/internal/handlers"
	"booking-intake/internal/kafka"
	"booking-intake/internal/logger"
	"booking-intake/internal/middleware"
	"booking-intake/internal/notify"
	"booking-intake/internal/services"
	"booking-intake/internal/storage"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Booking intake service starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded successfully")

	// The backup manager runs first: on a cold start it restores the store
	// file from the last backup before SQLite opens it.
	log.LogProcess("BACKUP", "Checking store file...")
	backups := backup.NewManager(cfg.Database.Path, cfg.Backup, log)
	if err := backups.EnsurePrimary(); err != nil {
		log.Fatal("BACKUP", "Store file unavailable: "+err.Error())
	}

	log.LogProcess("DATABASE", "Initializing SQLite database...")
	store, err := storage.NewSQLiteStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize SQLite: "+err.Error())
	}
	defer store.Close()
	backups.Guard(store.SnapshotLocker())
	log.Info("DATABASE", "Store file "+store.Path()+", backup file "+backups.BackupPath())

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer producer.Close()

	notifiers := []services.Notifier{producer}
	if cfg.Notify.Email {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Notify.SenderEmail, log))
	}

	bookingService := services.NewBookingService(store, log, notifiers...)
	log.LogProcess("SERVICE", "Booking service initialized")

	bookingHandler := handlers.NewBookingHandler(bookingService)
	adminHandler := handlers.NewAdminHandler(bookingService, backups)
	healthHandler := handlers.NewHealthHandler(store, backups)

	if err := backups.Start(); err != nil {
		log.Fatal("BACKUP", "Failed to schedule backups: "+err.Error())
	}

	router := setupRouter(cfg, bookingHandler, adminHandler, healthHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
		log.Info("STARTUP", "Booking form available at: http://localhost"+cfg.Server.Addr()+"/")
		log.Info("STARTUP", "Admin view available at: http://localhost"+cfg.Server.Addr()+"/admin")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	if err := bookingService.Wait(ctx); err != nil {
		log.Warn("SHUTDOWN", "Pending notifications abandoned: "+err.Error())
	}

	if err := backups.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Final backup failed: "+err.Error())
	}

	log.Info("SHUTDOWN", "Booking intake service shutdown completed")
}

func setupRouter(cfg *config.Config, bookingHandler *handlers.BookingHandler, adminHandler *handlers.AdminHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, log))

	router.SetHTMLTemplate(handlers.Templates())

	router.GET("/health", healthHandler.Health)

	// Booking form
	router.StaticFile("/", filepath.Join(cfg.Server.PublicDir, "index.html"))
	router.Static("/static", cfg.Server.PublicDir)

	router.POST("/book", bookingHandler.SubmitBooking)
	router.GET("/bookings", bookingHandler.ListBookings)

	admin := router.Group("/admin")
	{
		admin.GET("", adminHandler.BookingsPage)
		admin.GET("/export", adminHandler.ExportCSV)
		admin.GET("/backup", adminHandler.DownloadBackup)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
