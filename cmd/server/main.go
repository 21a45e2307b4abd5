package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"syncway/internal/app"
	"syncway/internal/config"
	"syncway/internal/email"
	"syncway/internal/handler"
	"syncway/internal/logger"
	"syncway/internal/realtime"
	internalRedis "syncway/internal/redis"
	"syncway/internal/repository"
	"syncway/internal/repository/postgres"
	"syncway/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.Log.Level})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	nrApp := newNewRelic(cfg.NewRelic, log)

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	rideRepo, closeRides := newRideRepository(ctx, cfg, db, log)
	defer closeRides()

	sender, closeSender := newMailSender(cfg, log)
	defer closeSender()

	srv := wireServer(db, redisClient, rideRepo, sender, nrApp, cfg, log)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := srv.hub.Run(hubCtx); err != nil {
			log.WithError(err).Error("realtime hub stopped")
		}
	}()

	// Start server in goroutine.
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	// Let in-flight emails and broadcasts finish before the hub and Redis go away.
	srv.dispatcher.Wait()
	stopHub()
	<-hubDone

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	log.Info("server exited")
}

type server struct {
	http       *http.Server
	hub        *realtime.Hub
	dispatcher *service.Dispatcher
}

func newNewRelic(cfg config.NewRelicConfig, log *logrus.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.WithError(err).Warn("failed to initialize New Relic")
		return nil
	}
	log.WithField("app", cfg.AppName).Info("New Relic enabled")
	return nrApp
}

// newRideRepository selects the ride store. Users stay in PostgreSQL either way.
func newRideRepository(ctx context.Context, cfg *config.Config, db *sql.DB, log *logrus.Logger) (repository.RideRepository, func()) {
	if cfg.Storage.RideStore != config.RideStoreMongo {
		return postgres.NewRideRepository(db), func() {}
	}

	repo, client, err := app.NewMongoRideRepository(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to mongo")
	}
	log.WithField("db", cfg.Storage.MongoDB).Info("rides stored in MongoDB")
	return repo, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
}

// newMailSender picks the queue, then SMTP, then a sender that only logs.
func newMailSender(cfg *config.Config, log *logrus.Logger) (email.Sender, func()) {
	switch {
	case cfg.Mail.QueueEnabled:
		producer, err := nsq.NewProducer(cfg.Mail.NSQDAddr, nsq.NewConfig())
		if err != nil {
			log.WithError(err).Fatal("failed to create nsq producer")
		}
		producer.SetLogger(logger.NewNSQLogger(log), nsq.LogLevelWarning)
		log.WithFields(logrus.Fields{"nsqd": cfg.Mail.NSQDAddr, "topic": cfg.Mail.Topic}).Info("email queued through NSQ")
		return email.NewQueueSender(producer, cfg.Mail.Topic), producer.Stop

	case cfg.SMTP.Host != "":
		log.WithField("host", cfg.SMTP.Host).Info("email sent through SMTP")
		return email.NewSMTPSender(smtpConfig(cfg.SMTP)), func() {}

	default:
		log.Warn("email not configured, messages will be logged and dropped")
		return email.NewLogSender(log), func() {}
	}
}

func smtpConfig(c config.SMTPConfig) email.SMTPConfig {
	return email.SMTPConfig{
		Host:               c.Host,
		Port:               c.Port,
		Username:           c.Username,
		Password:           c.Password,
		From:               c.From,
		FromName:           c.FromName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	rideRepo repository.RideRepository,
	sender email.Sender,
	nrApp *newrelic.Application,
	cfg *config.Config,
	log *logrus.Logger,
) *server {
	// Initialize Redis stores.
	presenceStore := internalRedis.NewPresenceStore(redisClient, cfg.Presence.TTL)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	userRepo := postgres.NewUserRepository(db)

	hub := realtime.NewHub(redisClient, presenceStore, log.WithField("component", "realtime"), cfg.Server.AllowedOrigins)

	// Initialize services.
	directory := service.NewPresenceDirectory(presenceStore, userRepo)
	rideService := service.NewRideService(rideRepo, directory, cacheStore, log.WithField("component", "rides"),
		service.RideServiceConfig{RequireRequesterToCancel: cfg.Rides.CancelRequiresRequester})
	userService := service.NewUserService(userRepo, presenceStore, log.WithField("component", "users"))
	dispatcher := service.NewDispatcher(hub, email.MustNewRenderer(), sender, userRepo,
		log.WithField("component", "dispatcher"), cfg.Dispatch.Timeout)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:   handler.NewRideHandler(rideService, dispatcher),
		UserHandler:   handler.NewUserHandler(userService, dispatcher),
		SocketHandler: handler.NewSocketHandler(hub),
		HealthHandler: handler.NewHealthHandler(directory),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		Logger:        log,

		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		hub:        hub,
		dispatcher: dispatcher,
	}
}
