package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/timenest/internal/config"
	"github.com/dukerupert/timenest/internal/database"
	"github.com/dukerupert/timenest/internal/logging"
	"github.com/dukerupert/timenest/internal/push"
	"github.com/dukerupert/timenest/internal/server"
)

func main() {
	defaultPath := os.Getenv("TIMENEST_CONFIG")
	if defaultPath == "" {
		defaultPath = "timenest.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	vapidKeys := flag.Bool("vapid-keys", false, "print a new VAPID key pair for push reminders and exit")
	restoreID := flag.Int64("restore", 0, "restore the backup with this ID and exit")
	restoreTo := flag.String("restore-to", "timenest-restored.db", "file to write a restored backup to")
	flag.Parse()

	if *vapidKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate VAPID keys:", err)
			os.Exit(1)
		}
		fmt.Printf("TIMENEST_VAPID_PUBLIC_KEY=%s\nTIMENEST_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	if err := config.LoadEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	if *restoreID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		err := srv.Backups().Restore(ctx, *restoreID, *restoreTo)
		cancel()
		if err != nil {
			slog.Error("restore failed", "error", err, "id", *restoreID)
			os.Exit(1)
		}
		slog.Info("restore complete; stop the service and replace the database file to use it", "path", *restoreTo)
		return
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Websocket connections outlive any write deadline; the client
		// enforces its own per-message timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CleanupCron, func() {
		srv.Cleanup(time.Now())
	}); err != nil {
		slog.Error("invalid cleanup schedule", "error", err, "schedule", cfg.CleanupCron)
		os.Exit(1)
	}
	if reminders := srv.Reminders(); reminders != nil {
		if _, err := scheduler.AddFunc("@every 1m", func() {
			if _, err := reminders.Run(time.Now()); err != nil {
				slog.Error("reminders failed", "error", err)
			}
		}); err != nil {
			slog.Error("schedule reminders", "error", err)
			os.Exit(1)
		}
	}
	if backups := srv.Backups(); backups.Enabled() {
		if _, err := scheduler.AddFunc(cfg.Backup.Cron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := backups.Run(ctx); err != nil {
				slog.Error("scheduled backup failed", "error", err)
			}
			if _, err := backups.Prune(ctx, time.Now()); err != nil {
				slog.Error("backup prune failed", "error", err)
			}
		}); err != nil {
			slog.Error("invalid backup schedule", "error", err, "schedule", cfg.Backup.Cron)
			os.Exit(1)
		}
	}
	scheduler.Start()

	go func() {
		slog.Info("timenest starting", "addr", cfg.Listen, "db", cfg.DBPath, "timezone", cfg.Timezone)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
