package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threads/internal/cache"
	"github.com/alfredjeanlab/threads/internal/config"
	"github.com/alfredjeanlab/threads/internal/events"
	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/server"
	"github.com/alfredjeanlab/threads/internal/store"
	"github.com/alfredjeanlab/threads/internal/store/gormstore"
	"github.com/alfredjeanlab/threads/internal/store/postgres"
	threadsync "github.com/alfredjeanlab/threads/internal/sync"
	"github.com/alfredjeanlab/threads/internal/threads"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the threads HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		cfg, err := config.LoadFile(envFile)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.LogMode)
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cfg, log)
	},
}

func init() {
	serveCmd.Flags().String("env-file", ".env", "dotenv file to load before reading THREADS_* variables")
}

func openStore(cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.Store {
	case "postgres":
		return postgres.New(cfg.DatabaseURL, cfg.LockTimeout)
	case "gorm":
		return gormstore.OpenPostgres(cfg.DatabaseURL, log)
	case "sqlite":
		return gormstore.OpenSQLite(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache {
	case "redis":
		return cache.NewRedis(ctx, cfg.RedisAddr)
	case "lru":
		return cache.NewLRU(cfg.CacheSize)
	default:
		return cache.NoopCache{}, nil
	}
}

func syncDestinations(ctx context.Context, cfg *config.Config, log *logger.Logger) []threadsync.Destination {
	var dests []threadsync.Destination
	if cfg.SyncS3Bucket != "" {
		d, err := threadsync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			log.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, d)
			log.Info("sync destination enabled", "dest", d.Name())
		}
	}
	if cfg.SyncGitRepo != "" {
		d := threadsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
		dests = append(dests, d)
		log.Info("sync destination enabled", "dest", d.Name())
	}
	return dests
}

func serve(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("error closing store", "err", err)
		}
	}()

	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	// origin tags this instance's invalidation events so it can skip its own.
	origin := events.NewEventID()
	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, "threads-"+origin)
		if err != nil {
			return err
		}
		publisher = pub
		log.Info("events enabled", "nats_url", cfg.NATSURL)

		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			log.Error("failed to create invalidation subscriber", "err", err)
		} else {
			iv := events.NewInvalidator(c, origin, log)
			go func() {
				if err := iv.Run(ctx, sub); err != nil {
					log.Error("invalidator error", "err", err)
				}
				sub.Close()
			}()
		}
	} else {
		log.Info("events disabled (THREADS_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("error closing publisher", "err", err)
		}
	}()

	svc := threads.New(st,
		threads.WithCache(c, cfg.CacheTTL),
		threads.WithPublisher(publisher, origin),
		threads.WithLogger(log),
	)
	ts := server.NewThreadsServer(svc, log)

	grpcServer := server.NewGRPCServer(ts, cfg.AuthToken, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           ts.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	var scheduler *threadsync.Scheduler
	if cfg.SyncInterval > 0 {
		if dests := syncDestinations(ctx, cfg, log); len(dests) > 0 {
			scheduler = threadsync.NewScheduler(st, dests, cfg.SyncInterval, log)
			scheduler.Start()
			log.Info("sync scheduler started", "interval", cfg.SyncInterval)
		}
	}

	log.Info("threads server started",
		"store", cfg.Store,
		"cache", cfg.Cache,
		"grpc_addr", cfg.GRPCAddr,
		"http_addr", cfg.HTTPAddr,
	)

	<-ctx.Done()
	log.Info("received signal, shutting down")

	if scheduler != nil {
		scheduler.Stop()
		log.Info("sync scheduler stopped")
	}

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "err", err)
	}
	log.Info("HTTP server stopped")

	log.Info("shutdown complete")
	return nil
}
