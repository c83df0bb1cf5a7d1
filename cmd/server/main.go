// Command grovi-server runs the Grovi development backend: the REST API on chi
// and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/config"
	pkgcrypto "github.com/and161185/grovi/internal/crypto"
	"github.com/and161185/grovi/internal/limiter"
	"github.com/and161185/grovi/internal/migrate"
	"github.com/and161185/grovi/internal/repository/postgres"
	"github.com/and161185/grovi/internal/search"
	grpcserver "github.com/and161185/grovi/internal/server/grpc"
	"github.com/and161185/grovi/internal/server/httpapi"
	"github.com/and161185/grovi/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	// Flags override grovi.yaml and GROVI_* variables.
	cfgPath := flag.String("config", "", "config file (default ./grovi.yaml if present)")
	addr := flag.String("addr", "", "HTTP listen address")
	healthAddr := flag.String("health-addr", "", "gRPC health listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN")
	jwtKey := flag.String("jwt-key", "", "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", 0, "access token TTL")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if p, ok := config.LoadDotenv(); ok {
		logger.Info("loaded env file", zap.String("path", p))
	}
	cfg, err := config.LoadServer(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "health-addr":
			cfg.HealthAddr = *healthAddr
		case "dsn":
			cfg.DSN = *dsn
		case "jwt-key":
			cfg.JWTKey = *jwtKey
		case "access-ttl":
			cfg.AccessTTL = *accessTTL
		}
	})

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("healthAddr", cfg.HealthAddr),
	)
	if cfg.JWTKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key or GROVI_JWT_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	users := postgres.NewUserRepo(db)
	fields := postgres.NewFieldRepo(db)
	thumbs := postgres.NewThumbnailRepo(db)
	snaps := postgres.NewSnapshotRepo(db)

	lim := limiter.NewPG(db.Pool, limiter.Policy{
		Window:   cfg.LoginWindow,
		MaxFails: cfg.LoginMaxAttempts,
		BlockFor: cfg.LoginBlock,
	})

	// Services
	authSvc := service.NewAuthService(users, pkgcrypto.NewHasher(pkgcrypto.DefaultParams), []byte(cfg.JWTKey), cfg.AccessTTL, lim)
	fieldSvc := service.NewFieldService(fields, thumbs)
	analysisSvc := service.NewAnalysisService(fields, snaps, service.Synthetic{})
	places := search.NewNominatim(cfg.NominatimURL, nil)

	api := httpapi.New(authSvc, fieldSvc, analysisSvc, places, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.New(logger)
	hlis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen health", zap.Error(err))
	}
	go health.Monitor(ctx, 10*time.Second, db.Ping)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
		errCh <- health.Serve(hlis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health.Stop(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
