package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/pulse"
	"github.com/lazypower/homeostat/internal/server"
	"github.com/lazypower/homeostat/internal/telemetry"
)

var serveRestore bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the pulse loop",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveRestore, "restore", false, "restore the newest checkpoint before starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	checkpoints := newCheckpoints()
	if serveRestore {
		rep, err := checkpoints.RestoreLatest()
		telemetry.RecordCheckpoint("restore", len(rep.Failed), err)
		switch {
		case errors.Is(err, checkpoint.ErrNoCheckpoints):
			slog.Warn("no checkpoint to restore, starting from the live state")
		case err != nil:
			return fmt.Errorf("restore checkpoint: %w", err)
		default:
			slog.Info("restored checkpoint", "name", rep.Checkpoint, "copied", len(rep.Copied), "failed", len(rep.Failed))
		}
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	oc := oracle()
	reg := newRegulator(eng, ledger, oc)
	opts := []server.Option{
		server.WithRegulator(reg),
		server.WithFilter(newFilter(oc)),
		server.WithCheckpoints(checkpoints),
		server.WithMetrics(telemetry.NewRegistry(eng)),
	}
	if ledger != nil {
		opts = append(opts, server.WithLedger(ledger))
	}

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng, VersionString(), opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	loop := &pulse.Loop{
		Engine:        eng,
		Checkpoints:   checkpoints,
		Sleeper:       reg,
		Interval:      cfg.Pulse.Interval,
		SleepPressure: cfg.Pulse.SleepPressure,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("homeostat serving", "addr", addr, "state", cfg.State.File, "oracle", cfg.LLM.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return loop.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
