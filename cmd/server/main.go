package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/access"
	"github.com/ayush/research-catalog/backend/internal/auth"
	"github.com/ayush/research-catalog/backend/internal/catalog"
	"github.com/ayush/research-catalog/backend/internal/config"
	"github.com/ayush/research-catalog/backend/internal/discovery"
	"github.com/ayush/research-catalog/backend/internal/engagement"
	"github.com/ayush/research-catalog/backend/internal/middleware"
	"github.com/ayush/research-catalog/backend/internal/research"
	"github.com/ayush/research-catalog/backend/internal/store"
)

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	ctx := context.Background()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logger.Fatal("postgres migrate", zap.Error(err))
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)
	grants := store.NewGrantStore(rdb)
	idemKeys := store.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Fatal("minio connect", zap.Error(err))
	}

	// ── Catalog core ─────────────────────────────────────────
	policy := access.NewPolicy(nil)
	cat := catalog.NewStore(pgStore, cfg.StoreTimeout, logger.Named("catalog"))
	ledger := engagement.NewLedger(cat, policy, mongoStore, cfg.StoreTimeout, logger.Named("engagement"))
	engine := discovery.NewEngine(ledger, policy, discovery.Config{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}, logger.Named("discovery"))
	cat.Subscribe(engine.Index, engine.Remove)
	cat.Subscribe(nil, ledger.Forget)

	artifacts, err := pgStore.ListArtifacts(ctx)
	if err != nil {
		logger.Fatal("load artifacts", zap.Error(err))
	}
	cat.Restore(artifacts)
	records, err := mongoStore.ListRecords(ctx)
	if err != nil {
		logger.Fatal("load engagement", zap.Error(err))
	}
	ledger.Restore(records)

	// ── Engagement flush ─────────────────────────────────────
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.FlushSchedule, func() {
		if _, err := ledger.Flush(context.Background()); err != nil {
			logger.Warn("scheduled engagement flush failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("flush schedule", zap.String("schedule", cfg.FlushSchedule), zap.Error(err))
	}
	scheduler.Start()

	// ── Handlers ─────────────────────────────────────────────
	svc := research.NewService(cat, ledger, policy, engine, minioStore, store.ArtifactKey, cfg.StoreTimeout, logger.Named("research"))
	authHandler := auth.NewHandler(pgStore, sessions, logger.Named("auth"))
	researchHandler := research.NewHandler(svc, pgStore, cfg.MaxUploadBytes, logger.Named("http"))

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Identify(sessions, pgStore, grants, logger.Named("auth")))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.RequireAuth).Get("/me", authHandler.Me)
		})

		researchHandler.Routes(r, middleware.RequireAuth, middleware.Idempotency(idemKeys, logger.Named("idempotency")))
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("backend listening",
			zap.String("port", cfg.Port),
			zap.Int("artifacts", cat.Len()),
			zap.Int("engagement_records", len(records)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	if n, err := ledger.Flush(shutCtx); err != nil {
		logger.Error("final engagement flush", zap.Int("written", n), zap.Error(err))
	}
}
