package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
	"github.com/custodia-labs/paperdex/internal/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index healthy in the foreground",
	Long: `Sweeps for papers without chunks on the configured interval
(reembed.sweep_interval) and re-embeds them, until interrupted. Edits to
reembed.sweep_interval in the config file take effect without a restart.
With --metrics-addr, prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchMetricsAddr string

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errReembedNotConfigured
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchMetricsAddr != "" {
		shutdown, err := serveMetrics(cmd, watchMetricsAddr)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	watchDone := make(chan struct{})
	watchCtx, cancelWatch := context.WithCancel(ctx)
	go func() {
		defer close(watchDone)
		if configWatcher != nil && settingsService != nil {
			followSweepInterval(watchCtx, configWatcher, settingsService, scheduler)
		}
	}()

	cmd.Println("Watching for papers without chunks. Press Ctrl+C to stop.")
	err := scheduler.Start(ctx)
	cancelWatch()
	<-watchDone
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if stopErr := scheduler.Stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	cmd.Println("Stopped.")
	return nil
}

// followSweepInterval applies reembed.sweep_interval edits until ctx ends.
func followSweepInterval(
	ctx context.Context,
	watcher ConfigWatcher,
	settings driving.SettingsService,
	sched driving.Scheduler,
) {
	err := watcher.Watch(ctx, func() {
		current, err := settings.Get()
		if err != nil {
			logger.Warn("Failed to read settings: %v", err)
			return
		}
		sched.Reschedule(current.Reembed.SweepInterval)
	})
	if err != nil {
		logger.Warn("Config changes will not be applied: %v", err)
	}
}

// serveMetrics starts the metrics endpoint and returns its shutdown function.
func serveMetrics(cmd *cobra.Command, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Get().Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server: %v", err)
		}
	}()
	cmd.Printf("Serving metrics on http://%s/metrics\n", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}, nil
}
