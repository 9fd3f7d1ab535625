package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-cart-reservations/internal/app"
	"github.com/ariefcatur/go-cart-reservations/internal/checkout"
	"github.com/ariefcatur/go-cart-reservations/internal/config"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/httpx"
	kafkax "github.com/ariefcatur/go-cart-reservations/internal/kafka"
	"github.com/ariefcatur/go-cart-reservations/internal/metrics"
	"github.com/ariefcatur/go-cart-reservations/internal/redisx"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/sweeper"
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

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if cfg.SeedFile != "" {
		if err := app.Seed(ctx, st, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Kafka producer (optional)
	var pub events.Publisher = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
		prod.Start()
		defer prod.WaitClosed()
		defer prod.Close()
		pub = prod
	} else {
		log.Warn("KAFKA_BROKERS empty, events are discarded")
	}

	carts := &reservation.Service{
		Store:                 st,
		TTL:                   cfg.CartReservationTTL,
		RefreshExpiryOnUpdate: cfg.RefreshExpiryOnUpdate,
		Log:                   log.Named("cart"),
		Metrics:               m,
	}
	orders := &checkout.Service{
		Store:                   st,
		Shipping:                checkout.FlatRate{RateCents: cfg.ShippingFlatCents, FreeOverCents: cfg.ShippingFreeOverCents},
		Publisher:               pub,
		ServiceName:             cfg.ServiceName,
		TransferDiscountPercent: cfg.TransferDiscountPercent,
		OrderHold:               cfg.OrderReservationHold,
		StrictTransitions:       cfg.StrictTransitions,
		Log:                     log.Named("checkout"),
		Metrics:                 m,
	}
	sw := &sweeper.Sweeper{
		Store:       st,
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
		LockTTL:     cfg.SweepLockTTL,
		Publisher:   pub,
		ServiceName: cfg.ServiceName,
		Log:         log.Named("sweeper"),
		Metrics:     m,
	}
	if cfg.SweepExpireOrders {
		sw.Orders = orders
	}

	// Redis (optional)
	oh := &httpx.OrdersHandler{Orders: orders, Log: log}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing; cache and sweep lock will fail open", zap.Error(err))
		}
		cache := &redisx.StatusCache{Client: rdb}
		orders.Statuses = cache
		oh.Cache = cache
		sw.Locker = &redisx.Locker{Client: rdb}
	}

	router := httpx.NewRouter(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	(&httpx.CartsHandler{Carts: carts, Log: log}).Register(router)
	oh.Register(router)
	(&httpx.AdminHandler{Sweeper: sw, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error { return sw.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
