package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tiffin-tracker-backend/internal/api"
	"tiffin-tracker-backend/internal/notification"
	"tiffin-tracker-backend/internal/scheduler"
	"tiffin-tracker-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder schedule",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create a context that is cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore := store.NewGormStore(a.db)
	job, err := notification.NewJob(a.cfg, appStore, a.log)
	if err != nil {
		return err
	}

	if a.cfg.Reminder.ScheduleEnabled {
		sched := scheduler.New(a.cfg.Reminder.Interval, scheduler.RunnerFunc(func(ctx context.Context) error {
			summary, err := job.Run(ctx)
			if err != nil {
				return err
			}
			a.log.Info("scheduled reminder run complete",
				zap.Int("usersChecked", summary.UsersChecked),
				zap.Int("notificationsSent", summary.NotificationsSent))
			return nil
		}), a.log)
		go sched.Run(ctx)
	} else {
		a.log.Info("reminder schedule disabled, waiting for external triggers")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: api.NewRouter(a.cfg, appStore, job, a.log),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received, stopping services")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	a.log.Info("server gracefully stopped")
	return nil
}
