package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"manuscripts/api/internal/app"
	"manuscripts/api/internal/cache"
	"manuscripts/api/internal/compare"
	"manuscripts/api/internal/config"
	"manuscripts/api/internal/gitrepo"
	"manuscripts/api/internal/logging"
	"manuscripts/api/internal/objectstore"
	"manuscripts/api/internal/search"
	"manuscripts/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), config.Load())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.WithHint(errors.Wrap(err, "database connection failed"), "check DATABASE_URL")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger.Named("migrate"))
	if err != nil {
		return errors.Wrap(err, "migrations failed")
	}
	logger.Info("schema ready", zap.Strings("applied", applied))

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return errors.Wrap(err, "create repos dir")
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, pgfts, logger)
	} else {
		searchService = search.NewService(nil, pgfts, logger)
	}
	indexCtx, stopIndexing := context.WithCancel(ctx)
	defer stopIndexing()
	indexDone := make(chan struct{})
	go func() {
		defer close(indexDone)
		searchService.KeepIndexed(indexCtx, 10*time.Second, pgfts)
	}()

	var opts []app.Option
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err := objectstore.NewArchive(ctx, objectstore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return errors.Wrap(err, "object store connection failed")
		}
		logger.Info("archiving snapshots", zap.String("bucket", cfg.MinioBucket))
		opts = append(opts, app.WithArchive(archive))
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "redis connection failed")
		}
		defer redisStore.Close()
		logger.Info("caching comparisons", zap.Duration("ttl", cfg.CompareCacheTTL))
		opts = append(opts, app.WithCache(redisStore))
	}

	engine := compare.New(
		compare.WithLogger(logger.Named("compare")),
		compare.WithStrictIdentity(cfg.StrictIdentity),
		compare.WithDiffTimeout(cfg.DiffTimeout),
	)
	service := app.New(cfg, dataStore, gitService, searchService, engine, logger, opts...)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIToken, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("manuscripts api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	stopIndexing()
	<-indexDone
	searchService.Wait()
	return nil
}
