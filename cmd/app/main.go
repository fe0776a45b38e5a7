package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"booking-service/internal/availability"
	"booking-service/internal/booking"
	"booking-service/internal/config"
	availabilityGet "booking-service/internal/http-server/handlers/availability/get"
	bookingsCancel "booking-service/internal/http-server/handlers/bookings/cancel"
	bookingsComplete "booking-service/internal/http-server/handlers/bookings/complete"
	bookingsCreate "booking-service/internal/http-server/handlers/bookings/create"
	bookingsGet "booking-service/internal/http-server/handlers/bookings/get"
	bookingsRecurring "booking-service/internal/http-server/handlers/bookings/recurring"
	bookingsReschedule "booking-service/internal/http-server/handlers/bookings/reschedule"
	"booking-service/internal/idempotency"
	"booking-service/internal/lock"
	"booking-service/internal/metrics"
	"booking-service/internal/recurrence"
	"booking-service/internal/storage/postgres"
	"booking-service/pkg/handlers/slogpretty"
	"booking-service/pkg/middleware/mwlogger"
	"booking-service/pkg/middleware/ratelimit"
	"booking-service/pkg/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting booking service", slog.String("env", cfg.Env))

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.Init(context.Background()); err != nil {
		log.Error("failed to init schema", sl.Err(err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Error("failed to connect to redis", sl.Err(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	locker := lock.NewRedisLockWithClient(redisClient)
	idemStore := idempotency.NewRedisStore(redisClient, cfg.Booking.IdempotencyTTL)

	metrics.Register()

	calc := availability.NewCalculator(log, storage, cfg.Booking.SourceTimeout)
	manager := booking.NewManager(log, storage, calc, locker, idemStore, booking.Config{
		GuardWindow:   cfg.Booking.GuardWindow,
		LockTTL:       cfg.Booking.LockTTL,
		CommitRetries: cfg.Booking.CommitRetries,
		RetryBackoff:  cfg.Booking.RetryBackoff,
	})
	expander := recurrence.NewExpander(log, manager)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/tenants/{tenant}", func(r chi.Router) {
		r.Get("/services/{service}/availability", availabilityGet.New(log, calc))

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/{reference}", bookingsGet.New(log, manager))

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.New(cfg.Booking.RateLimitRPS, cfg.Booking.RateLimitBurst))

				r.Post("/", bookingsCreate.New(log, manager))
				r.Post("/recurring", bookingsRecurring.New(log, expander))
				r.Post("/{reference}/cancel", bookingsCancel.New(log, manager))
				r.Post("/{reference}/reschedule", bookingsReschedule.New(log, manager))
				r.Post("/{reference}/complete", bookingsComplete.New(log, manager))
			})
		})
	})

	log.Info("starting server", slog.String("address", cfg.Address))

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", sl.Err(err))
		}
	}()

	log.Info("server started")

	<-done
	log.Info("stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to stop server", sl.Err(err))
		return
	}

	log.Info("server stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
