package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"ourchants/internal/catalog"
	"ourchants/internal/config"
	"ourchants/internal/database"
	"ourchants/internal/health"
	"ourchants/internal/logging"
	"ourchants/internal/metrics"
	"ourchants/internal/presign"
	"ourchants/internal/server"
	"ourchants/internal/storage"
	"ourchants/internal/storage/cache"
	"ourchants/internal/storage/dynamo"
	"ourchants/internal/storage/memstore"
	"ourchants/internal/storage/s3blob"
	"ourchants/internal/storage/sqlstore"
	"ourchants/internal/tracing"
	"ourchants/internal/validation"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (defaults to ./config.yaml or ./config/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ourchants: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewConfigLoader()
	if configPath != "" {
		loader.SetConfigFile(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	logger.Debug(fmt.Sprintf("Configuration loaded: driver=%s tracing=%s rate_limit=%t",
		cfg.Storage.Driver, cfg.Tracing.Exporter, cfg.RateLimit.Enabled))

	tracer, err := tracing.NewTracer(cfg.Tracing.Exporter, cfg.Tracing.Endpoint, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	ctx := context.Background()

	awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:          cfg.AWS.Region,
		ConnectTimeout:  cfg.AWS.ConnectTimeout,
		ReadTimeout:     cfg.AWS.ReadTimeout,
		MaxAttempts:     cfg.AWS.MaxAttempts,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	records, closeRecords, err := openRecordStore(cfg, awsCfg, logger, m)
	if err != nil {
		return err
	}
	defer closeRecords()

	probes := []health.Probe{{Name: "record_store", Check: records.Ping}}

	if cfg.Redis.Addr != "" {
		client := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.Timeout)
		defer client.Close()
		records = cache.New(records, client, cfg.Redis.TTL, logger, m)
		probes = append(probes, health.Probe{Name: "cache", Check: redisPing(client)})
		logger.Infof("Song cache enabled at %s", cfg.Redis.Addr)
	}

	blobs := s3blob.New(s3blob.NewClient(awsCfg, cfg.AWS.S3Endpoint), m)
	checker := presign.NewChecker(blobs, presign.Options{
		DefaultBucket: cfg.Blob.DefaultBucket,
		TTL:           cfg.Blob.LinkTTL,
		RetryAfter:    cfg.Blob.RetryAfter,
		Logger:        logger,
		Metrics:       m,
	})
	defaultBucket := checker.DefaultBucket()
	probes = append(probes, health.Probe{
		Name:  "blob_store",
		Check: func(ctx context.Context) error { return blobs.HeadBucket(ctx, defaultBucket) },
	})

	policy, err := validation.ParseUnknownFieldPolicy(cfg.Catalog.UnknownFields)
	if err != nil {
		return err
	}

	svc := catalog.NewService(records, catalog.Options{
		URITemplate: validation.URITemplate{
			Scheme: "s3",
			Bucket: cfg.Blob.URIBucket,
			Prefix: cfg.Blob.URIPrefix,
		},
		UnknownFields: policy,
		Logger:        logger,
		Metrics:       m,
	})

	srv := server.NewAPIServer(cfg, server.Deps{
		Catalog:  svc,
		Presign:  checker,
		Health:   health.NewChecker(cfg.AWS.ReadTimeout, m, probes...),
		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
		Tracer:   tracer,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Infof("Received %s, shutting down gracefully", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(err, "Error during shutdown")
		}
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timed out; exiting with requests in flight")
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Error flushing traces")
	}

	logger.Info("Server stopped")

	return nil
}

// openRecordStore builds the configured record store and a func releasing it
func openRecordStore(cfg *config.AppConfig, awsCfg aws.Config, logger *logging.Logger, m *metrics.Metrics) (storage.RecordStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverDynamoDB:
		client := dynamo.NewClient(awsCfg, cfg.AWS.DynamoEndpoint)
		logger.Infof("Using DynamoDB table %s", cfg.Storage.Table)
		return dynamo.New(client, cfg.Storage.Table, cfg.Storage.ScanPageSize, m), func() {}, nil

	case config.DriverPostgres, config.DriverSQLite:
		dbManager, err := database.NewDatabaseManager(cfg.Storage.Driver, cfg.Database, logger.Zerolog())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closeDB := func() {
			if err := dbManager.Close(); err != nil {
				logger.Error(err, "Error closing database")
			}
		}
		logger.Infof("Using %s record store", cfg.Storage.Driver)
		return sqlstore.New(dbManager.GetGormDB(), cfg.Storage.ScanPageSize, m), closeDB, nil

	case config.DriverMemory:
		logger.Warn("Using in-memory record store; songs are lost on restart")
		return memstore.New(cfg.Storage.ScanPageSize), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func redisPing(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
