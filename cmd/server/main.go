/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lunch fund server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and LUNCHFUND_* environment variables
  2. Initialize SQLite store
  3. Wire services, notification dispatcher, and selection scheduler
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  LUNCHFUND_PORT             HTTP server port (default: 8080)
  LUNCHFUND_DB_PATH          SQLite database path (":memory:" works)
  -port / -db                command-line overrides for the two above
  LUNCHFUND_TARGET_BUYERS    Buyers per selection (default: 4)
  LUNCHFUND_SELECTION_CRON   Selection schedule (default: 11:00 weekdays)
  LUNCHFUND_TELEGRAM_TOKEN   Optional; without it events go to the log
  LUNCHFUND_TELEGRAM_CHAT_ID Group chat for announcements
  LUNCHFUND_LOG_LEVEL        trace|debug|info|warn|error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop scheduler and dispatcher
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/crewlunch/lunchfund/api"
	"github.com/crewlunch/lunchfund/config"
	"github.com/crewlunch/lunchfund/notify"
	"github.com/crewlunch/lunchfund/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP port, overrides LUNCHFUND_PORT")
	dbPath := flag.String("db", "", "SQLite database path, overrides LUNCHFUND_DB_PATH")
	flag.Parse()

	// Local development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, cfg.TargetBuyers)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.WithError(err).Fatal("failed to connect telegram")
		}
		notifier = tg
	}

	dispatcher := notify.NewDispatcher(store, notifier, cfg.NotifyInterval)
	dispatcher.Start()
	defer dispatcher.Stop()

	scheduler := api.NewScheduler(store, handler.Rotation, cfg.SelectionCron)
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}

	log.Info("server stopped")
}
