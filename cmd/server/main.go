// Package main runs the ExtraBeam HTTP API with WebSocket push and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/extrabeam/backend/config"
	"github.com/extrabeam/backend/internal/auth"
	"github.com/extrabeam/backend/internal/billing"
	"github.com/extrabeam/backend/internal/clients"
	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/contacts"
	"github.com/extrabeam/backend/internal/invoices"
	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/missions"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/notifications"
	"github.com/extrabeam/backend/internal/realtime"
	"github.com/extrabeam/backend/internal/slots"
	"github.com/extrabeam/backend/internal/subscription"
	"github.com/extrabeam/backend/internal/unavailabilities"
	"github.com/extrabeam/backend/internal/worker"
	"github.com/extrabeam/backend/pkg/database"
	"github.com/extrabeam/backend/pkg/queue"
	"github.com/extrabeam/backend/pkg/redis"
	"github.com/extrabeam/backend/pkg/response"
	"github.com/extrabeam/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var documents companies.DocumentStore
	if cfg.AWS.Region != "" && cfg.AWS.DocumentsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.DocumentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			documents = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	gateway := billing.NewStripe(cfg.Stripe.SecretKey, logger)
	if !gateway.Configured() {
		logger.Warn("stripe secret key missing, billing endpoints will answer 503")
	}

	// Repositories
	authRepo := auth.NewRepository(pool)
	companyRepo := companies.NewRepository(pool)
	clientRepo := clients.NewRepository(pool)
	contactRepo := contacts.NewRepository(pool)
	missionRepo := missions.NewRepository(pool)
	slotRepo := slots.NewRepository(pool)
	unavailabilityRepo := unavailabilities.NewRepository(pool)
	invoiceRepo := invoices.NewRepository(pool)
	emailLogRepo := notifications.NewRepository(pool)

	dispatcher := notifications.NewDispatcher(authRepo, jobQueue, cfg.Site.URL, logger)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	companyHandler := companies.NewHandler(companyRepo, documents, logger)
	clientHandler := clients.NewHandler(clientRepo, logger)
	contactHandler := contacts.NewHandler(contactRepo, companyRepo, logger)
	missionHandler := missions.NewHandler(missionRepo, companyRepo, dispatcher, logger)
	slotHandler := slots.NewHandler(slotRepo, missionRepo, companyRepo, logger)
	unavailabilityHandler := unavailabilities.NewHandler(unavailabilityRepo, slotRepo, companyRepo, logger)
	invoiceHandler := invoices.NewHandler(invoiceRepo, missionRepo, companyRepo, gateway, invoices.Options{
		SiteURL:       cfg.Site.URL,
		Currency:      cfg.Stripe.Currency,
		WebhookSecret: cfg.Stripe.PaymentsWebhookSecret,
		Users:         authRepo,
		Notifier:      dispatcher,
		Events:        hub,
	}, logger)
	emailLogHandler := notifications.NewHandler(emailLogRepo)

	subscriptionSvc := subscription.NewService(companyRepo, gateway, subscription.Options{
		Prices:     cfg.Stripe.Prices(),
		TrialDays:  cfg.Stripe.TrialDays,
		SiteURL:    cfg.Site.URL,
		Cache:      subscription.NewRedisCache(rdb.Client, 0, logger),
		Events:     hub,
		Notifier:   dispatcher,
		Unresolved: jobQueue,
	}, logger)
	subscriptionHandler := subscription.NewHandler(subscriptionSvc, cfg.Stripe.WebhookSecret, logger)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; the vendor signature is verified in the handler)
	router.POST("/api/subscription/webhook", subscriptionHandler.Webhook)
	router.POST("/api/payments/webhook", invoiceHandler.Webhook)

	// Public
	public := router.Group("/api")
	{
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.GET("/companies", companyHandler.List)
		public.GET("/companies/:slug", companyHandler.Get)
		public.GET("/companies/:slug/slots", slotHandler.List)
		public.GET("/companies/:slug/availability", unavailabilityHandler.Availability)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService.Identity))
	{
		api.GET("/auth/me", authHandler.Me)

		api.POST("/companies", middleware.RequireRole(string(models.RoleEntreprise), string(models.RoleAdmin)), companyHandler.Create)

		manage := api.Group("/companies/:slug", companies.RequireManager(companyRepo))
		{
			manage.PATCH("", companyHandler.Update)
			manage.POST("/uploads", companyHandler.RequestUpload)
			manage.PUT("/documents/:kind", companyHandler.UploadDocument)

			manage.POST("/slots", slotHandler.Create)
			manage.PATCH("/slots/:id", slotHandler.Update)
			manage.DELETE("/slots/:id", slotHandler.Delete)

			manage.GET("/unavailabilities", unavailabilityHandler.List)
			manage.POST("/unavailabilities", unavailabilityHandler.Create)
			manage.PATCH("/unavailabilities/:id", unavailabilityHandler.Update)
			manage.DELETE("/unavailabilities/:id", unavailabilityHandler.Delete)
			manage.POST("/unavailabilities/:id/exceptions", unavailabilityHandler.AddException)

			manage.GET("/invoices", invoiceHandler.ListCompany)
			manage.POST("/invoices", subscription.RequireActive(), invoiceHandler.Create)

			manage.GET("/emails", emailLogHandler.ListByCompany)
		}

		// Client side
		clientOnly := middleware.RequireRole(string(models.RoleClient))
		api.GET("/clients/me", clientOnly, clientHandler.GetMe)
		api.PUT("/clients/me", clientOnly, clientHandler.PutMe)
		api.GET("/contacts", clientOnly, contactHandler.List)
		api.POST("/contacts", clientOnly, contactHandler.Add)
		api.DELETE("/contacts/:companyId", clientOnly, contactHandler.Remove)
		api.GET("/mission-templates", clientOnly, missionHandler.ListTemplates)
		api.POST("/mission-templates", clientOnly, missionHandler.CreateTemplate)
		api.DELETE("/mission-templates/:id", clientOnly, missionHandler.DeleteTemplate)
		api.POST("/companies/:slug/missions", clientOnly, missionHandler.Create)

		// Missions (client, company manager or admin; access is checked per mission)
		api.GET("/missions", missionHandler.List)
		api.GET("/missions/:id", missionHandler.Get)
		api.PATCH("/missions/:id/status", missionHandler.UpdateStatus)
		api.DELETE("/missions/:id", clientOnly, missionHandler.Delete)

		// Invoices
		api.GET("/invoices", clientOnly, invoiceHandler.ListMine)
		api.GET("/invoices/:id", invoiceHandler.Get)
		api.PATCH("/invoices/:id", invoiceHandler.Update)
		api.POST("/invoices/:id/payment-link", invoiceHandler.PaymentLink)

		// Subscription
		api.POST("/subscription/checkout", subscriptionHandler.Checkout)
		api.GET("/subscription/status", subscriptionHandler.Status)
		api.POST("/subscription/portal", subscriptionHandler.Portal)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, realtime.ServeOptions{
		Validate:       jwtService.Identity,
		Companies:      companyRepo,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Welcome: func(co *models.Company) (string, interface{}) {
			return subscription.EventStatusChanged, subscription.StatusOf(co, time.Now())
		},
	}, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process email worker; run cmd/worker instead when scaling out.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.InProcess {
		sender, err := notifications.NewResendSender(notifications.ResendConfig{
			BaseURL:     cfg.Email.BaseURL,
			APIKey:      cfg.Email.APIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		}, logger)
		if err != nil {
			logger.Fatal("email sender", zap.Error(err))
		}
		go worker.NewEmailProcessor(jobQueue, sender, emailLogRepo, logger).Run(workerCtx)
		logger.Info("email worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
