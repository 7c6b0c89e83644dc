package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"RefreshSentinel/internal/api"
	"RefreshSentinel/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cron scheduler, admin API and operator chat",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info().Msg("RefreshSentinel starting...")

	sched := scheduler.NewScheduler(ctx, a.runner, a.log)
	if err := sched.Register(a.cfg.Scheduler.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(ctx, a.store, a.boosts, a.runner, a.metrics, a.cfg.API.APIKey)
	httpSrv := &http.Server{Addr: a.cfg.API.Listen, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", a.cfg.API.Listen).Msg("admin api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin api stopped")
			cancel()
		}
	}()

	if a.cfg.Scheduler.RunOnStart {
		log.Info().Msg("RUN_ON_START enabled, executing a run now")
		go func() {
			if _, err := sched.RunNow(); err != nil {
				log.Error().Err(err).Msg("startup run failed")
			}
		}()
	}

	log.Info().Msg("RefreshSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("admin api shutdown")
	}
	cancel()
	return nil
}
