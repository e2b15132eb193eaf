package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/match"
	"github.com/esquilo/wager-engine/internal/metrics"
	"github.com/esquilo/wager-engine/internal/pix"
	"github.com/esquilo/wager-engine/internal/stakes"
	"github.com/esquilo/wager-engine/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Payment identity ---
	builder := &pix.Builder{
		Key:          os.Getenv("PIX_KEY"),
		MerchantName: envOr("PIX_MERCHANT_NAME", "Esquilo Aposta"),
		MerchantCity: envOr("PIX_MERCHANT_CITY", "Sao Paulo"),
	}
	if builder.Key == "" {
		slog.Warn("PIX_KEY not set, confirmations will fail until configured")
	}

	// --- Stake list ---
	stakeCfg := stakes.NewConfig(stakeValues())

	// --- WebSocket hub ---
	hub := match.NewHub()
	go hub.Run()

	// --- Match service ---
	svc := match.NewService(st, builder, stakeCfg, hub)

	// --- Stale queue janitor ---
	if guildID := os.Getenv("GUILD_ID"); guildID != "" {
		ttl := durationOr("QUEUE_TTL", 2*time.Hour)
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			slog.Error("scheduler init failed", "err", err)
			os.Exit(1)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(15*time.Minute),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				n, err := svc.ExpireStale(ctx, guildID, ttl)
				if err != nil {
					slog.Error("stale queue sweep failed", "err", err)
					return
				}
				if n > 0 {
					slog.Info("expired stale queues", "count", n)
				}
			}),
		)
		if err != nil {
			slog.Error("scheduler job failed", "err", err)
			os.Exit(1)
		}
		scheduler.Start()
		cleanup = append(cleanup, func() { _ = scheduler.Shutdown() })
		slog.Info("stale queue janitor enabled", "guild", guildID, "ttl", ttl.String())
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time lifecycle events.
		r.Get("/ws", hub.HandleWS)

		// Match lifecycle.
		r.Get("/matches", svc.HandleListMatches)
		r.Post("/matches", svc.HandleCreateMatch)
		r.Get("/matches/{matchID}", svc.HandleGetMatch)
		r.Get("/matches/room/{code}", svc.HandleGetMatchByRoomCode)
		r.Post("/matches/{matchID}/join", svc.HandleJoin)
		r.Post("/matches/{matchID}/leave", svc.HandleLeave)
		r.Post("/matches/{matchID}/confirmation", svc.HandleOpenConfirmation)
		r.Post("/matches/{matchID}/confirm", svc.HandleConfirm)
		r.Post("/matches/{matchID}/result", svc.HandleResult)
		r.Post("/matches/{matchID}/cancel", svc.HandleCancel)
		r.Get("/matches/{matchID}/payment-code", svc.HandlePaymentCode)

		// Accounts.
		r.Get("/accounts/{userID}", svc.HandleGetAccount)
		r.Put("/accounts/{userID}/mediator", svc.HandleSetMediator)
		r.Put("/accounts/{userID}/pix", svc.HandleSetPixIdentity)

		// Stake configuration.
		r.Get("/stakes", svc.HandleListStakes)
		r.Put("/stakes", svc.HandleReplaceStakes)

		// Audit log.
		r.Get("/audit", svc.HandleAuditLog)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("wager-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

// stakeValues parses STAKE_VALUES ("1.00,2.00,5.00") or falls back to the
// stock list.
func stakeValues() []decimal.Decimal {
	raw := os.Getenv("STAKE_VALUES")
	if raw == "" {
		return stakes.Defaults()
	}

	var values []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		v, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil || !v.IsPositive() {
			slog.Warn("skipping invalid stake value", "value", part)
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return stakes.Defaults()
	}
	return values
}
