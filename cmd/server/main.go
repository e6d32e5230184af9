package main

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-reservation/internal/config"
    "github.com/iliyamo/bus-seat-reservation/internal/database"
    "github.com/iliyamo/bus-seat-reservation/internal/handler"
    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/logging"
    "github.com/iliyamo/bus-seat-reservation/internal/middleware"
    "github.com/iliyamo/bus-seat-reservation/internal/queue"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
    "github.com/iliyamo/bus-seat-reservation/internal/router"
    "github.com/iliyamo/bus-seat-reservation/internal/service"
)

// stores is the persistence wiring selected by STORAGE_BACKEND.
type stores struct {
    reservations repository.ReservationStore
    users        repository.UserStore
    tokens       repository.TokenStore
    health       handler.Pinger
    close        func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
    switch cfg.StorageBackend {
    case config.BackendPostgres:
        pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
        if err != nil {
            return stores{}, fmt.Errorf("open postgres: %w", err)
        }
        if err := database.MigratePostgres(ctx, pool); err != nil {
            pool.Close()
            return stores{}, err
        }
        return stores{
            reservations: repository.NewPgReservationRepo(pool),
            users:        repository.NewPgUserRepo(pool),
            tokens:       repository.NewPgTokenRepo(pool),
            health:       pool,
            close:        pool.Close,
        }, nil

    case config.BackendMemory:
        logger.Warn("using in-memory storage; reservations are lost on restart")
        return stores{
            reservations: repository.NewMemoryReservationStore(),
            users:        repository.NewMemoryUserStore(),
            tokens:       repository.NewMemoryTokenStore(),
            close:        func() {},
        }, nil
    }

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        return stores{}, fmt.Errorf("open mysql: %w", err)
    }
    if err := database.Migrate(ctx, db); err != nil {
        _ = db.Close()
        return stores{}, err
    }
    return stores{
        reservations: repository.NewReservationRepo(db),
        users:        repository.NewUserRepo(db),
        tokens:       repository.NewTokenRepo(db),
        health:       handler.PingFunc(db.PingContext),
        close:        func() { closeDB(db, logger) },
    }, nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
    if err := db.Close(); err != nil {
        logger.Warn("close database", zap.Error(err))
    }
}

func main() {
    _ = godotenv.Load() // .env is optional

    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    logger, err := logging.New(cfg.Env, cfg.IsDev())
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    if err := run(cfg, logger); err != nil {
        logger.Fatal("server stopped", zap.Error(err))
    }
}

func run(cfg config.Config, logger *zap.Logger) error {
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    st, err := openStores(ctx, cfg, logger)
    if err != nil {
        return err
    }
    defer st.close()

    rdb, err := config.NewRedisClient(ctx, cfg.Redis)
    if err != nil {
        logger.Warn("redis unavailable; rate limiting and caching disabled", zap.Error(err))
    } else {
        defer func() { _ = rdb.Close() }()
    }

    var publisher service.EventPublisher = service.NoopPublisher{}
    if cfg.EventsEnabled {
        publisher = service.NewAMQPPublisher(cfg.AMQPURL, logger)
    }
    if cfg.BookingConsumerEnabled {
        consumer := queue.NewBookingConsumer(cfg.AMQPURL, cfg.BookingLogPath, logger)
        go func() {
            if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                logger.Error("booking consumer stopped", zap.Error(err))
            }
        }()
    }

    resolver := identity.NewJWTResolver(cfg.JWTSecret).WithLeeway(30 * time.Second)
    bookings := service.NewBookingService(st.reservations, resolver, publisher, cfg.SeatCount, logger)

    authHandler := handler.NewAuthHandler(cfg, st.users, st.tokens, resolver, logger)
    bookingHandler := handler.NewBookingHandler(bookings, logger)

    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Use(echomw.RequestID())
    e.Use(echomw.Recover())
    e.Use(middleware.RequestLogger(logger))

    limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)
    router.RegisterRoutes(e, st.health)
    router.RegisterAuth(e, authHandler, resolver, limiter)
    router.RegisterPublic(e, bookingHandler, middleware.NewRedisCache(cfg.Cache, rdb, logger))
    router.RegisterCustomer(e, bookingHandler, limiter)

    errCh := make(chan error, 1)
    go func() {
        addr := ":" + cfg.Port
        logger.Info("listening",
            zap.String("addr", addr),
            zap.String("env", cfg.Env),
            zap.String("storage", cfg.StorageBackend),
            zap.Int("seat_count", bookings.SeatCount()),
        )
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case err := <-errCh:
        return err
    case <-ctx.Done():
    }

    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    return e.Shutdown(shutdownCtx)
}
