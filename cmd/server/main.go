package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/url-relay-go/api"
	"github.com/yourusername/url-relay-go/api/handlers"
	"github.com/yourusername/url-relay-go/internal/app"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/internal/infrastructure"
	"github.com/yourusername/url-relay-go/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	version    = "dev"
	configPath = flag.String("config", "", "Path to config file (default: search ./configs, $XDG_CONFIG_HOME/url-relay, /etc/url-relay)")
)

func main() {
	flag.Parse()

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "url-relay-server: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	var multiLog *logger.MultiLogger
	if config.Logging.LogsDir != "" {
		multiLog, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		defer multiLog.Close()
		log = multiLog.Tee(log)
	}

	log.Info("Starting url-relay server",
		zap.String("version", version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("download_dir", config.Download.Dir),
		zap.Bool("swarm", config.Swarm.Enabled),
		zap.Bool("telegram", config.Telegram.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := infrastructure.NewSQLiteAcquisitionRepository(config.Journal.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer repo.Close()

	var tgBot *bot.Bot
	if config.Telegram.Enabled {
		tgBot, err = infrastructure.NewTelegramBot(&config.Telegram)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
	}
	notifier := infrastructure.NewNotificationService(&config.Notification, tgBot, log)

	if config.Extractor.AutoInstall {
		if err := infrastructure.InstallYTDLP(ctx); err != nil {
			log.Warn("yt-dlp auto-install failed, media links will fail until it is installed", zap.Error(err))
		}
	}

	dispatcher, closeEngines, err := app.BuildDispatcher(config, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngines(); err != nil {
			log.Warn("Failed to close swarm engine", zap.Error(err))
		}
	}()

	registry := app.NewTaskRegistry(&config.Registry)
	relay := app.NewRelayService(dispatcher, registry, repo, notifier, &config.Progress, multiLog, log)

	if config.Janitor.Enabled {
		janitor := app.NewJanitor(&config.Janitor,
			[]string{config.Download.Dir, config.Swarm.TorrentDir}, registry, relay, log)
		if err := janitor.Start(); err != nil {
			return err
		}
		defer func() { <-janitor.Stop().Done() }()
	}

	var updaters handlers.UpdaterFactory
	if tgBot != nil {
		updaters = func(chatID int64, messageID int) domain.StatusUpdater {
			return infrastructure.NewTelegramStatusUpdater(tgBot, chatID, messageID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	router := api.SetupRouter(api.RouterOptions{
		BaseContext: gctx,
		Relay:       relay,
		Updaters:    updaters,
		LogsDir:     config.Logging.LogsDir,
		Version:     version,
		Logger:      log,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := relay.Wait(shutdownCtx); err != nil {
			log.Warn("Acquisitions still running at exit", zap.Int("active", len(relay.ActiveTasks())))
		}
		return nil
	})

	err = g.Wait()
	log.Info("Server exited")
	return err
}
