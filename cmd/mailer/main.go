// Command mailer consumes queued email from NSQ and delivers it over SMTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsqio/go-nsq"

	"syncway/internal/app"
	"syncway/internal/config"
	"syncway/internal/email"
	"syncway/internal/logger"
	"syncway/internal/metrics"
	internalRedis "syncway/internal/redis"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.Log.Level}).WithField("component", "mailer")

	if cfg.SMTP.Host == "" {
		log.Fatal("SMTP_HOST is required for the mailer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		From:               cfg.SMTP.From,
		FromName:           cfg.SMTP.FromName,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	})
	worker := email.NewWorker(sender, internalRedis.NewLockStore(redisClient), log,
		uint16(cfg.Mail.MaxAttempts), cfg.Dispatch.Timeout)

	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = uint16(cfg.Mail.MaxAttempts)
	nsqCfg.MaxInFlight = 10

	consumer, err := nsq.NewConsumer(cfg.Mail.Topic, cfg.Mail.Channel, nsqCfg)
	if err != nil {
		log.WithError(err).Fatal("failed to create nsq consumer")
	}
	consumer.SetLogger(logger.NewNSQLogger(log), nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(worker, 4)

	if len(cfg.Mail.LookupdAddrs) > 0 {
		err = consumer.ConnectToNSQLookupds(cfg.Mail.LookupdAddrs)
	} else {
		err = consumer.ConnectToNSQD(cfg.Mail.NSQDAddr)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to connect to nsq")
	}
	log.WithField("topic", cfg.Mail.Topic).Info("mailer consuming")

	// Metrics only; the mailer has no API.
	gin.SetMode(gin.ReleaseMode)
	metricsRouter := gin.New()
	metricsRouter.GET("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.Server.Port, Handler: metricsRouter}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-consumer.StopChan:
	}

	log.Info("shutting down mailer")
	consumer.Stop()
	<-consumer.StopChan

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
