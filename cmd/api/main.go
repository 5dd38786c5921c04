package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foodhakhq/foodhak-health-data/internal/api"
	"github.com/foodhakhq/foodhak-health-data/internal/archive"
	"github.com/foodhakhq/foodhak-health-data/internal/auth"
	"github.com/foodhakhq/foodhak-health-data/internal/config"
	"github.com/foodhakhq/foodhak-health-data/internal/ingest"
	"github.com/foodhakhq/foodhak-health-data/internal/outbox"
	"github.com/foodhakhq/foodhak-health-data/internal/persistence"
	pgstore "github.com/foodhakhq/foodhak-health-data/internal/persistence/postgres"
	"github.com/foodhakhq/foodhak-health-data/internal/provider"
	"github.com/foodhakhq/foodhak-health-data/internal/query"
	httptransport "github.com/foodhakhq/foodhak-health-data/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := persistence.WithTimeout(pgstore.NewRepository(pool), cfg.StoreTimeout)

	opts := []ingest.Option{}
	if cfg.RequireActiveConnection {
		opts = append(opts, ingest.WithConnectionChecker(pgstore.NewConnectionReader(pool)))
		log.Printf("active device connection required for uploads")
	}
	if cfg.S3Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		}, nil)
		if err != nil {
			log.Fatalf("failed to configure s3 archive: %v", err)
		}
		opts = append(opts, ingest.WithArchiver(archiver))
		log.Printf("record archive enabled -> s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	}
	service := ingest.NewService(provider.DefaultRegistry(), store, opts...)
	engine := query.NewEngine(store)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	handler := api.NewHandler(service, engine, store,
		api.WithVersion(cfg.APIVersion),
		api.WithHealthCheckTimeout(cfg.HealthCheckTimeout),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths("/healthz", "/v1/health/check"))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.LogRequests(nil, authMiddleware.Wrap(mux)))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("health-data metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	go func() {
		log.Printf("health-data api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	dispatcher.Wait()
}
