package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/internal/config"
	"github.com/aretw0/bower/internal/logging"
	"github.com/aretw0/bower/internal/presentation/tui"
	fileAdapter "github.com/aretw0/bower/pkg/adapters/file"
	httpAdapter "github.com/aretw0/bower/pkg/adapters/http"
	loamAdapter "github.com/aretw0/bower/pkg/adapters/loam"
	memoryAdapter "github.com/aretw0/bower/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/bower/pkg/adapters/redis"
	"github.com/aretw0/bower/pkg/observability"
	"github.com/aretw0/bower/pkg/persistence/middleware"
	"github.com/aretw0/bower/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session host with its admin HTTP server",
	Long: `Boots the Bower host and exposes the admin API over HTTP: session
stats, expiration, cleanup, a lifecycle event stream, and optionally
Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		log := logging.New(parseLogLevel(cfg.LogLevel))

		linger, err := time.ParseDuration(cfg.Linger)
		if err != nil {
			fmt.Printf("Invalid linger %q: %v\n", cfg.Linger, err)
			os.Exit(1)
		}
		sweep, err := time.ParseDuration(cfg.SweepInterval)
		if err != nil {
			fmt.Printf("Invalid sweep interval %q: %v\n", cfg.SweepInterval, err)
			os.Exit(1)
		}

		store, locker, closeStore, err := buildStore(cfg)
		if err != nil {
			fmt.Printf("Error building snapshot store: %v\n", err)
			os.Exit(1)
		}
		defer closeStore()

		app, seedApp, err := buildApp(cfg, log)
		if err != nil {
			fmt.Printf("Error loading seed repository: %v\n", err)
			os.Exit(1)
		}

		streams := httpAdapter.NewStreamManager()

		opts := []bower.Option{
			bower.WithLogger(log),
			bower.WithLinger(linger),
			bower.WithSweepInterval(sweep),
			bower.WithSnapshotStore(store),
			bower.WithDevelopMode(cfg.Develop),
			bower.WithEvents(streams.Events()),
		}
		if locker != nil {
			opts = append(opts, bower.WithSweepLock(locker))
		}

		serverOpts := []httpAdapter.Option{
			httpAdapter.WithLogger(log),
			httpAdapter.WithStreams(streams),
		}
		if cfg.Metrics {
			reg := prometheus.NewRegistry()
			metrics := observability.New(reg)
			opts = append(opts, bower.WithEvents(metrics.Events()))
			serverOpts = append(serverOpts, httpAdapter.WithMetrics(
				promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			))
		}

		host, err := bower.New(app, opts...)
		if err != nil {
			fmt.Printf("Error initializing host: %v\n", err)
			os.Exit(1)
		}

		if tui.IsTTY() {
			tui.PrintBanner(bower.Version)
		}

		if err := host.Load(); err != nil {
			fmt.Printf("Error loading host: %v\n", err)
			os.Exit(1)
		}

		// Develop mode follows seed edits so new sessions pick them up.
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		if cfg.Develop && seedApp != nil {
			changes, err := seedApp.Watch(watchCtx)
			if err != nil {
				log.Warn("seed watch unavailable", "err", err)
			} else {
				go func() {
					for id := range changes {
						log.Info("seed repository changed", "seed", id)
					}
				}()
			}
		}

		srv := &http.Server{
			Addr:    cfg.AdminAddr,
			Handler: httpAdapter.NewServer(host, serverOpts...).Handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Bower admin server on %s\n", srv.Addr)
			if cfg.SeedDir != "" {
				fmt.Printf("Seeding sessions from: %s\n", cfg.SeedDir)
			}
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			// Error when starting HTTP server.
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)
			cancelWatch()

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Asking listener to shut down and shed load.
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}

			// Unload runs the application hooks and flushes snapshots.
			if err := host.Unload(ctx); err != nil {
				fmt.Printf("Error unloading host: %v\n", err)
			}
			fmt.Println("Bower stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Admin server listen address")
	serveCmd.Flags().String("seed-dir", "", "Seed document repository (empty for blank sessions)")
	serveCmd.Flags().String("linger", "15s", "How long idle sessions survive before cleanup")
	serveCmd.Flags().String("sweep-interval", "30s", "Cleanup sweep period (0 disables the sweeper)")
	serveCmd.Flags().String("store", "memory", "Snapshot backend: memory, file or redis")
	serveCmd.Flags().String("snapshots-dir", "", "Base directory of the file store")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis store")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis logical database")
	serveCmd.Flags().String("encryption-key", "", "Passphrase for snapshot encryption at rest")
	serveCmd.Flags().BoolP("develop", "d", false, "Reload the seed repository on file changes")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the configuration file and applies flag overrides on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.AdminAddr, _ = flags.GetString("addr")
	}
	if flags.Changed("seed-dir") {
		cfg.SeedDir, _ = flags.GetString("seed-dir")
	}
	if flags.Changed("linger") {
		cfg.Linger, _ = flags.GetString("linger")
	}
	if flags.Changed("sweep-interval") {
		cfg.SweepInterval, _ = flags.GetString("sweep-interval")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("snapshots-dir") {
		cfg.SnapshotsDir, _ = flags.GetString("snapshots-dir")
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("redis-password") {
		cfg.RedisPassword, _ = flags.GetString("redis-password")
	}
	if flags.Changed("redis-db") {
		cfg.RedisDB, _ = flags.GetInt("redis-db")
	}
	if flags.Changed("encryption-key") {
		cfg.EncryptionKey, _ = flags.GetString("encryption-key")
	}
	if flags.Changed("develop") {
		cfg.Develop, _ = flags.GetBool("develop")
	}
	if flags.Changed("metrics") {
		cfg.Metrics, _ = flags.GetBool("metrics")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg, nil
}

// buildStore constructs the snapshot backend. The returned locker is non-nil
// only for backends that support distributed sweeps.
func buildStore(cfg config.Config) (ports.SnapshotStore, ports.DistributedLocker, func(), error) {
	var store ports.SnapshotStore
	var locker ports.DistributedLocker
	closeStore := func() {}

	switch cfg.Store {
	case "memory":
		store = memoryAdapter.NewStore()
	case "file":
		store = fileAdapter.NewStore(cfg.SnapshotsDir)
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store = redisAdapter.NewFromClient(client)
		locker = redisAdapter.NewLocker(client, "bower:")
		closeStore = func() { _ = client.Close() }
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q (supported: memory, file, redis)", cfg.Store)
	}

	if cfg.EncryptionKey != "" {
		// Derive a fixed-length AES-256 key from the passphrase.
		key := sha256.Sum256([]byte(cfg.EncryptionKey))
		store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: key[:],
		})(store)
	}

	return store, locker, closeStore, nil
}

// buildApp picks the session application: the loam seed application when a
// seed directory is configured, otherwise a no-op.
func buildApp(cfg config.Config, log *slog.Logger) (ports.Application, *loamAdapter.SeedApplication, error) {
	if cfg.SeedDir == "" {
		return ports.NopApplication{}, nil, nil
	}
	seedApp, err := loamAdapter.NewFromDir(cfg.SeedDir, loamAdapter.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return seedApp, seedApp, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
