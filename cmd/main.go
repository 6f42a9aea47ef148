package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mdshare/internal/auth"
	"mdshare/internal/config"
	"mdshare/internal/cos"
	"mdshare/internal/handler"
	"mdshare/internal/logger"
	"mdshare/internal/repository"
	"mdshare/internal/service"
	"mdshare/internal/service/s3"
)

const healthService = "mdshare.Ingest"

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, log *zap.Logger) (*sqlx.DB, error) {
	// The maintenance database always exists; create ours from there.
	admin := cfg
	admin.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", admin.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		log.Info("creating database", zap.String("name", cfg.Name))
		if _, err = pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}
		log.Warn("database connection failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func main() {
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(appConfig.Server.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db        *sqlx.DB
		rdb       *redis.Client
		assetRepo repository.AssetStore
		quotaRepo repository.QuotaStore
	)

	switch appConfig.Database.Driver {
	case "postgres":
		db, err = connectWithRetry(appConfig.Database, 5, 5*time.Second, zl)
		if err != nil {
			zl.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.Migrate(appConfig.Database.URL(), 5, 5*time.Second, zl); err != nil {
			zl.Fatal("failed to run migrations", zap.Error(err))
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			zl.Fatal("failed to ping database", zap.Error(err))
		}
		assetRepo = repository.NewAssetRepository(db)
	default:
		zl.Warn("using in-memory asset records; data is lost on restart")
		assetRepo = repository.NewMemoryAssetRepository()
	}

	limit := appConfig.Quota.DefaultLimitBytes
	switch appConfig.Quota.Backend {
	case "postgres":
		quotaRepo = repository.NewStorageQuotaRepository(db, limit)
	case "redis":
		rdb = redis.NewClient(&redis.Options{
			Addr:     appConfig.Redis.Addr,
			Password: appConfig.Redis.Password,
			DB:       appConfig.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatal("failed to ping redis", zap.Error(err))
		}
		quotaRepo = repository.NewRedisQuotaRepository(rdb, limit)
	default:
		quotaRepo = repository.NewMemoryQuotaRepository(limit)
	}

	verifier, err := auth.NewVerifier(appConfig.Auth)
	if err != nil {
		zl.Fatal("failed to create token verifier", zap.Error(err))
	}

	store := appConfig.ObjectStore
	quotaService := service.NewStorageQuotaService(quotaRepo, zl)
	credentialService := service.NewCredentialService(service.CredentialConfig{
		Bucket:          store.Bucket,
		Region:          store.Region,
		SecretID:        store.SecretID,
		SecretKey:       store.SecretKey,
		PathRoot:        store.PathRoot,
		TTL:             store.CredentialTTL,
		ExposeSecretKey: store.Kind == "s3",
	}, quotaService, zl)
	urls := cos.NewURLBuilder(store.Bucket, store.Region, store.Domain)
	assetService := service.NewAssetService(assetRepo, quotaService, urls, store.PathRoot, zl)
	reconcileService := service.NewReconcileService(assetRepo, quotaService, zl)

	handlers := handler.Handlers{
		Credential: handler.NewCredentialHandler(credentialService, verifier, zl),
		Upload:     handler.NewUploadHandler(assetService, verifier, zl),
		Quota:      handler.NewStorageQuotaHandler(quotaService, reconcileService, verifier, zl),
	}

	var (
		s3Client *s3.Client
		sweeper  *service.SweeperService
	)
	s3Client, err = s3.NewClient(&s3.Config{
		Endpoint:        store.S3Endpoint(),
		Region:          store.Region,
		AccessKeyID:     store.SecretID,
		SecretAccessKey: store.SecretKey,
		Bucket:          store.Bucket,
		UsePathStyle:    store.UsePathStyle,
	})
	if err != nil {
		zl.Warn("object store admin client unavailable, sweeping disabled", zap.Error(err))
	} else {
		sweeper = service.NewSweeperService(s3Client, assetRepo, store.PathRoot, zl)
		handlers.Admin = handler.NewAdminHandler(sweeper, verifier, appConfig.Sweeper.Grace, zl)
	}

	r := handler.NewRouter(handlers, nil)

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			zl.Fatal("failed to listen for gRPC", zap.Error(err))
		}
		zl.Info("starting gRPC health server", zap.String("port", appConfig.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	go func() {
		zl.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	go watchHealth(ctx, healthServer, 30*time.Second, zl, dependencyChecks(db, rdb, s3Client)...)

	if sweeper != nil && appConfig.Sweeper.Enabled {
		go runSweeper(ctx, sweeper, appConfig.Sweeper.Interval, appConfig.Sweeper.Grace, zl)
	}

	<-ctx.Done()
	zl.Info("shutting down servers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	zl.Info("server exited properly")
}

type check struct {
	name string
	ping func(ctx context.Context) error
}

func dependencyChecks(db *sqlx.DB, rdb *redis.Client, s3Client *s3.Client) []check {
	var checks []check
	if db != nil {
		checks = append(checks, check{"postgres", db.PingContext})
	}
	if rdb != nil {
		checks = append(checks, check{"redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	if s3Client != nil {
		checks = append(checks, check{"object-store", s3Client.Ping})
	}
	return checks
}

// watchHealth publishes NOT_SERVING while any dependency fails its ping.
func watchHealth(ctx context.Context, hs *health.Server, interval time.Duration, log *zap.Logger, checks ...check) {
	probe := func() {
		status := healthpb.HealthCheckResponse_SERVING
		for _, c := range checks {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.ping(pingCtx)
			cancel()
			if err != nil {
				log.Warn("dependency unhealthy", zap.String("dependency", c.name), zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus(healthService, status)
		hs.SetServingStatus("", status)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			return
		}
	}
}

func runSweeper(ctx context.Context, sweeper *service.SweeperService, interval, grace time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report, err := sweeper.Sweep(ctx, "", grace)
			if err != nil {
				log.Error("orphan sweep failed", zap.Error(err))
				continue
			}
			log.Info("orphan sweep finished",
				zap.Int("scanned", report.Scanned),
				zap.Int("deleted", len(report.Deleted)),
				zap.Int64("freed_bytes", report.FreedBytes),
			)
		case <-ctx.Done():
			return
		}
	}
}
