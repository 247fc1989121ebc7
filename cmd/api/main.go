package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/verbalink/verbalink-api/api/swagger"
	notifierclient "github.com/verbalink/verbalink-api/internal/clients/notifier"
	stripeclient "github.com/verbalink/verbalink-api/internal/clients/stripe"
	zoomclient "github.com/verbalink/verbalink-api/internal/clients/zoom"
	"github.com/verbalink/verbalink-api/internal/handler"
	"github.com/verbalink/verbalink-api/internal/middleware"
	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/internal/repository"
	"github.com/verbalink/verbalink-api/internal/service"
	"github.com/verbalink/verbalink-api/pkg/cache"
	"github.com/verbalink/verbalink-api/pkg/clock"
	"github.com/verbalink/verbalink-api/pkg/config"
	"github.com/verbalink/verbalink-api/pkg/database"
	"github.com/verbalink/verbalink-api/pkg/logger"
	corsmiddleware "github.com/verbalink/verbalink-api/pkg/middleware/cors"
	reqidmiddleware "github.com/verbalink/verbalink-api/pkg/middleware/requestid"
)

// @title VerbaLink Booking API
// @version 0.1.0
// @description Booking, payment and meeting coordination core
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, slot caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	clk := clock.New()

	// Repositories.
	teacherRepo := repository.NewTeacherRepository(db)
	gigRepo := repository.NewGigRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)

	var cacheDep service.SlotCache
	if redisClient != nil {
		cacheDep = repository.NewCacheRepository(redisClient, logr)
	}

	metricsService := service.NewMetricsService()

	// External clients.
	cpClient := stripeclient.New(cfg.Stripe, metricsService, logr)
	vpClient := zoomclient.New(cfg.Zoom, metricsService, logr)
	onClient := notifierclient.New(cfg.Notifier, metricsService, logr)

	// Services.
	authService := service.NewAuthService(cfg.JWT.Secret, logr)
	notificationService := service.NewNotificationService(onClient, cfg.Notifier.WorkerConcurrency, cfg.Notifier.WorkerRetries, logr)

	slotService := service.NewSlotService(
		teacherRepo, gigRepo, availabilityRepo, bookingRepo, cacheDep,
		clk, cfg.Booking.WindowDays, cfg.Booking.MinLeadTime, cfg.Booking.SlotCacheTTL, logr)
	meetingService := service.NewMeetingService(vpClient, cfg.Zoom.CallTimeout, logr)
	bookingService := service.NewBookingService(
		bookingRepo, gigRepo, teacherRepo, paymentRepo, slotService, meetingService,
		notificationService, metricsService, clk, cfg.Booking.MinLeadTime, validate, logr)
	paymentService := service.NewPaymentService(
		paymentRepo, refundRepo, bookingRepo, bookingService, gigRepo, teacherRepo,
		cpClient, notificationService, clk, cfg.Booking.PlatformFeeBPS, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, availabilityRepo, slotService, clk, validate, logr)

	// Handlers.
	slotHandler := handler.NewSlotHandler(slotService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	refundHandler := handler.NewRefundHandler(paymentService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	notificationService.Start(workerCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// The processor signs webhook payloads; no bearer token is present.
	api.POST("/payments/webhook", paymentHandler.Webhook)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.GET("/slots", slotHandler.List)

		authed.GET("/bookings", bookingHandler.List)
		authed.GET("/bookings/:id", bookingHandler.Get)
		authed.POST("/bookings", middleware.RequireRoles(models.RoleStudent), bookingHandler.Create)
		authed.POST("/bookings/:id/confirm", middleware.RequireRoles(models.RoleTeacher), bookingHandler.Confirm)
		authed.POST("/bookings/:id/cancel", bookingHandler.Cancel)
		authed.POST("/bookings/:id/reschedule", middleware.RequireRoles(models.RoleStudent), bookingHandler.Reschedule)
		authed.POST("/bookings/:id/complete", bookingHandler.Complete)

		authed.POST("/payments/intent", middleware.RequireRoles(models.RoleStudent), paymentHandler.Initiate)
		authed.GET("/payments/methods", middleware.RequireRoles(models.RoleStudent), paymentHandler.ListMethods)
		authed.GET("/payments/:id/receipt", paymentHandler.Receipt)

		authed.POST("/refunds", middleware.RequireRoles(models.RoleStudent), refundHandler.Request)
		authed.POST("/admin/refunds/:id", middleware.RequireRoles(models.RoleAdmin), refundHandler.Resolve)

		authed.GET("/teachers/me/availability", middleware.RequireRoles(models.RoleTeacher), teacherHandler.ListAvailability)
		authed.PUT("/teachers/me/availability", middleware.RequireRoles(models.RoleTeacher), teacherHandler.ReplaceAvailability)
		authed.GET("/teachers/me/earnings", middleware.RequireRoles(models.RoleTeacher), teacherHandler.Earnings)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
	notificationService.Stop()
	stopWorkers()
}
