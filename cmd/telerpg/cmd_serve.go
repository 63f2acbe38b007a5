package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/telerpg/internal/delivery"
	"github.com/user/telerpg/internal/dialogue"
	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/gateway"
	"github.com/user/telerpg/internal/observability"
	"github.com/user/telerpg/internal/scheduler"
	"github.com/user/telerpg/internal/state"
	"github.com/user/telerpg/internal/telegram"
	"github.com/user/telerpg/internal/types"
	"github.com/user/telerpg/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telerpg daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "telerpg.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	stores, err := state.Open(ctx, cfg.DataDir, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Character creation dialogue; finished records become players.
	engine := dialogue.NewEngine(stores.Dialogues, dialogue.CreateCharacterSteps(),
		func(ctx context.Context, subject types.SubjectID, fields types.FieldValues) error {
			player, err := game.NewPlayer(subject, fields)
			if err != nil {
				return err
			}
			return stores.Players.Create(ctx, player)
		})

	// Delivery registry
	deliveryReg := delivery.NewRegistry()

	// Gateway
	gw := gateway.New(gateway.Deps{
		Engine:  engine,
		Players: stores.Players,
		Actions: stores.Actions,
		Journal: stores.Journal,
		Metrics: metrics,
	}, int64(cfg.MaxConcurrent))
	gw.SetSender(deliveryReg.Deliver)

	// Action completion handler notifies subjects through their lanes.
	handler := game.NewHandler(stores.Players, stores.Journal, gw.Notify)

	sched := scheduler.New(stores.Actions, handler.Complete,
		scheduler.WithSweepSchedule(cfg.Scheduler.SweepInterval),
		scheduler.WithAlertFunc(func(subject types.SubjectID, message string) {
			gw.Notify(subject, message)
		}))
	gw.AttachScheduler(sched)

	gw.Start(ctx)
	defer gw.Stop()

	// Telegram adapter. Registered before the scheduler starts so that
	// notifications from overdue-action recovery have a delivery route.
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")

		deliveryReg.Register("telegram:", adapter.SendTo)
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Start after the gateway: recovery of overdue actions runs inline
	// and needs working lanes for its notifications.
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("telerpg started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"sweep_interval", cfg.Scheduler.SweepInterval,
		"pid_file", pidPath,
	)

	// Ops HTTP server: health, metrics, read API, action cancel.
	if cfg.HTTP.Addr != "" {
		opsSrv := webhook.NewServer(stores.Players, stores.Actions, stores.Journal, sched)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: opsSrv,
		}
		go func() {
			slog.Info("ops server started", "addr", cfg.HTTP.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("ops server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
