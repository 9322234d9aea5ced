package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shelf/internal/audit"
	"shelf/internal/booking"
	"shelf/internal/cache"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/metrics"
	"shelf/internal/notify"
	"shelf/internal/storage/sqlite"
	"shelf/internal/workinghours"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $SHELF_CONFIG_PATH or configs/config.yaml)")
	exportMonth := flag.String("export", "", "write the activity workbook for YYYY-MM and exit")
	exportOrg := flag.String("org", "", "organization to export")
	exportDir := flag.String("out", "exports", "directory for exported workbooks")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	database, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exportMonth != "" {
		if err := runExport(ctx, database, *exportOrg, *exportMonth, *exportDir, logger); err != nil {
			logger.Fatal().Err(err).Msg("export failed")
		}
		return
	}

	var (
		rdb   *redis.Client
		hours workinghours.Repository = database
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		hours = cache.NewWorkingHours(database, rdb, cfg.CacheTTL(), logger)
	}

	admin := workinghours.NewService(hours, logger)
	if cfg.WorkingHoursFile != "" {
		seed := func(f *config.WorkingHoursFile) {
			if err := config.SeedWorkingHours(ctx, admin, f, time.Now(), logger); err != nil {
				logger.Error().Err(err).Msg("seed working hours failed")
			}
		}
		if err := config.WatchWorkingHours(ctx, cfg.WorkingHoursFile, 30*time.Second, seed, logger); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.WorkingHoursFile).Msg("load working hours error")
		}
	}

	bus := events.NewBus(logger)
	bus.Subscribe(events.All, audit.NewRecorder(database, logger).Handle)
	if cfg.TelegramEnabled() {
		api, err := notify.NewBotSender(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram sender error")
		}
		tg := notify.NewTelegram(api, cfg.Telegram.ChatID, cfg.Telegram.RatePerSecond, cfg.Telegram.Burst, logger)
		bus.Subscribe(events.All, tg.Handle)
	}

	bookings := booking.NewService(
		database.Bookings(),
		workinghours.NewResolver(hours, logger),
		cfg.BookingSettings(),
		logger,
		booking.WithPublisher(bus),
	)

	if cfg.Backup.Enabled {
		go database.NewBackups(cfg.Backup.Path, cfg.Backup.RetentionDays, logger).Run(ctx, cfg.BackupInterval())
	}

	go startHealthServer(ctx, cfg.HealthCheckPort(), database, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	logger.Info().Str("db", cfg.Database.Path).Msg("shelf started")
	runOverdueSweeper(ctx, bookings, cfg.OverdueSweepInterval(), &logger)
	logger.Info().Msg("shelf stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// runOverdueSweeper marks late bookings overdue until ctx is done.
func runOverdueSweeper(ctx context.Context, svc *booking.Service, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.MarkOverdue(ctx, time.Now())
			if err != nil {
				logger.Error().Err(err).Msg("overdue sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("count", n).Msg("overdue sweep")
			}
		}
	}
}

func runExport(ctx context.Context, store audit.Store, orgID, month, dir string, logger zerolog.Logger) error {
	if orgID == "" {
		return errors.New("-org is required with -export")
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return fmt.Errorf("parse month %q: %w", month, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	from, to := audit.MonthRange(t)
	path := filepath.Join(dir, audit.Filename(t))
	n, err := audit.NewExporter(store).ExportToFile(ctx, orgID, from, to, path)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("rows", n).Msg("activity exported")
	return nil
}

func startHealthServer(ctx context.Context, port int, database *sqlite.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
