package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/config"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/events/kafka"
	"github.com/avstrong/rentals/internal/idgen/uuidgen"
	"github.com/avstrong/rentals/internal/lock"
	"github.com/avstrong/rentals/internal/lock/redislock"
	"github.com/avstrong/rentals/internal/logger"
	"github.com/avstrong/rentals/internal/metrics"
	"github.com/avstrong/rentals/internal/migration"
	"github.com/avstrong/rentals/internal/provider/httpcatalog"
	"github.com/avstrong/rentals/internal/provider/static"
	"github.com/avstrong/rentals/internal/storage/memory"
	"github.com/avstrong/rentals/internal/storage/postgres"
	"github.com/avstrong/rentals/internal/tracing"
	"github.com/avstrong/rentals/internal/transport/web"
)

const serviceName = "rentals"

// storage is what both the memory and the postgres stores provide.
type storage interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	SaveProperty(ctx context.Context, property *catalog.Property) error
	SaveLocalPackage(ctx context.Context, p *catalog.LocalPackage) error
	SaveSubscriptionTransaction(ctx context.Context, tx *entitlement.Transaction) error
	SaveEstimate(ctx context.Context, estimate *booking.Estimate) error
	SaveBooking(ctx context.Context, b *booking.Booking) error
	SaveEvent(ctx context.Context, event *booking.Event) error

	GetProperty(ctx context.Context, propertyID string) (*catalog.Property, error)
	ListLocalPackages(ctx context.Context, propertyID string) ([]catalog.LocalPackage, error)
	ListSubscriptionTransactions(ctx context.Context, customerID string) ([]entitlement.Transaction, error)
	GetEstimate(ctx context.Context, id string) (*booking.Estimate, error)
	FindUnpaidEstimates(ctx context.Context, customerID, propertyID string) ([]*booking.Estimate, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetBookingByEstimate(ctx context.Context, estimateID string) (*booking.Booking, error)
	ListIntervals(ctx context.Context, propertyID string) ([]availability.Interval, error)
}

type locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type productLister interface {
	ListProducts(ctx context.Context) ([]catalog.ExternalProduct, error)
}

func openStorage(ctx context.Context, l *logger.Logger, conf config.Config) (storage, *postgres.DB, error) {
	if conf.Storage != "postgres" {
		return memory.New(memory.Config{L: l}), nil, nil
	}

	db, err := postgres.New(ctx, postgres.Config{L: l, URL: conf.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()

		return nil, nil, err
	}

	return db, db, nil
}

func newLocker(ctx context.Context, l *logger.Logger, conf config.Config, pg *postgres.DB) (locker, func(), error) {
	switch conf.Locker {
	case "redis":
		//nolint:exhaustruct
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("ping redis at %s: %w", conf.RedisAddr, err)
		}

		closeFn := func() {
			if err := client.Close(); err != nil {
				l.LogErrorf("Failed to close redis client: %v", err.Error())
			}
		}

		//nolint:exhaustruct
		return redislock.New(client, redislock.Config{TTL: conf.LockTTL}), closeFn, nil
	case "postgres":
		return postgres.NewLocker(pg.Pool()), func() {}, nil
	default:
		return lock.NewLocal(), func() {}, nil
	}
}

func newProducts(conf config.Config, seed *migration.Seed) (productLister, error) {
	if conf.ExternalCatalogURL != "" {
		//nolint:exhaustruct
		return httpcatalog.New(httpcatalog.Config{
			BaseURL: conf.ExternalCatalogURL,
			Timeout: conf.ExternalCatalogTimeout,
		}), nil
	}

	products, err := seed.ExternalProducts()
	if err != nil {
		return nil, fmt.Errorf("load seeded external products: %w", err)
	}

	return static.New(products...), nil
}

func Run(l *logger.Logger, conf config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	tp, err := tracing.InitTracerProvider(l, serviceName, conf.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second) //nolint:gomnd
		defer cancel()

		if err := tp.Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop tracer provider: %v", err.Error())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct
	)

	m := metrics.New(reg)

	store, pg, err := openStorage(ctx, l, conf)
	if err != nil {
		return err
	}

	if pg != nil {
		defer pg.Close()
	}

	seed, err := migration.Default()
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}

	if conf.Seed {
		if err := migration.Up(ctx, l, store, seed); err != nil {
			return fmt.Errorf("up seed migration: %w", err)
		}

		l.LogInfo("Seed migration has been applied")
	}

	lk, closeLocker, err := newLocker(ctx, l, conf, pg)
	if err != nil {
		return err
	}
	defer closeLocker()

	products, err := newProducts(conf, seed)
	if err != nil {
		return err
	}

	//nolint:exhaustruct
	bookingConf := booking.Config{
		L:       l,
		Storage: store,
		Catalog: catalog.New(catalog.Config{
			L:            l,
			Storage:      store,
			Products:     products,
			Observer:     m,
			CacheTTL:     conf.CatalogCacheTTL,
			FetchTimeout: conf.ExternalCatalogTimeout,
			Now:          time.Now,
		}),
		Tiers:        entitlement.NewLookup(store, time.Now),
		Availability: availability.New(availability.Config{L: l, Storage: store, Observer: m, Now: time.Now}),
		Locker:       lk,
		IDGenerator:  uuidgen.New(),
		Observer:     m,
		Now:          time.Now,
	}

	if len(conf.KafkaBrokers) > 0 {
		publisher := kafka.New(kafka.Config{Brokers: conf.KafkaBrokers, Topic: conf.KafkaTopic, Observer: m})

		defer func() {
			if err := publisher.Close(); err != nil {
				l.LogErrorf("Failed to close event publisher: %v", err.Error())
			}
		}()

		bookingConf.Publisher = publisher

		l.LogInfo("Booking events are published to topic %s", conf.KafkaTopic)
	}

	bookManager := booking.New(bookingConf)

	webConf := web.Conf{
		L:                 l,
		ServerLogger:      log.Default(),
		Host:              conf.HTTPHost,
		Port:              conf.HTTPPort,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		LivenessEndpoint:  conf.LivenessEndpoint,
		Gatherer:          reg,
	}

	srv, err := web.New(ctx, webConf, bookManager)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*4) //nolint:gomnd
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v with %s storage and %s locker...",
		webConf.Host, webConf.Port, conf.Storage, conf.Locker)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}
