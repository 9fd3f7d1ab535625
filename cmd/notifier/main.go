package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/app"
	"github.com/ariefcatur/go-cart-reservations/internal/config"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	kafkax "github.com/ariefcatur/go-cart-reservations/internal/kafka"
	"github.com/ariefcatur/go-cart-reservations/internal/notify"
	"github.com/ariefcatur/go-cart-reservations/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := &notify.Service{
		Mailer:      notify.LogMailer{Log: log.Named("mail")},
		ServiceName: cfg.ServiceName + "-notifier",
		Log:         log,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		svc.Redis = rdb
	}

	topics := []string{events.TopicOrderCreated, events.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers, log.Named("kafka"))

	log.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup), zap.Strings("topics", topics), zap.Int("workers", cfg.NotifierWorkers))
	if err := cons.Start(ctx, svc.Handle); err != nil {
		log.Error("consumer exit", zap.Error(err))
		return
	}
	log.Info("notifier stopped")
}
