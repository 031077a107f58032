package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/replica/internal/config"
	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/metrics"
	"github.com/roach88/replica/internal/remote"
)

// DaemonOptions holds flags for the daemon command.
type DaemonOptions struct {
	*RootOptions
	Interval    time.Duration
	Watch       bool
	MetricsAddr string
	Debounce    time.Duration
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DaemonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync continuously until interrupted",
		Long: `Run a sync of every configured entity type at startup and then every
sync.interval. With --watch and a dir remote, a type is also synced as soon
as its export files change. Serves Prometheus metrics on /metrics when
metrics are enabled in the config or --metrics-addr is given.

Stops gracefully on SIGINT or SIGTERM; a running cycle is cancelled
before it applies anything, or finishes if it is already applying.

Example:
  replica daemon --interval 30s
  replica daemon --watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between sync runs (overrides sync.interval)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "also sync when export files change (dir remote only)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve metrics on this address (overrides metrics.addr)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", remote.DefaultDebounce, "quiet period before a file change triggers a sync")

	return cmd
}

func runDaemon(opts *DaemonOptions, cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	a, err := openApp(ctx, opts.RootOptions, cmd.ErrOrStderr(), m)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.Sync.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	var changes <-chan entity.Type
	var watchErrs <-chan error
	if opts.Watch {
		if a.cfg.Remote.Kind != config.RemoteDir {
			return NewExitError(ExitCommandError, ErrCodeUsage, "--watch requires a dir remote")
		}
		w, err := remote.NewWatcher(a.cfg.Remote.Dir, a.types, opts.Debounce)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeConfig, "failed to create watcher", err)
		}
		if err := w.Start(); err != nil {
			w.Stop()
			return WrapExitError(ExitCommandError, ErrCodeConfig, "failed to watch export", err)
		}
		defer w.Stop()
		changes, watchErrs = w.Changes(), w.Errors()
	}

	g, gctx := errgroup.WithContext(ctx)

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" && a.cfg.Metrics.Enabled {
		metricsAddr = a.cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr, registry).WithLogger(a.logger)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	d := &daemon{
		runner:    a.runner,
		logger:    a.logger,
		interval:  interval,
		changes:   changes,
		watchErrs: watchErrs,
	}
	g.Go(func() error {
		return d.run(gctx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Daemon started: %d entity type(s), interval %s\n", len(a.types), interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, ErrCodeGeneric, "daemon error", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
	return nil
}

// daemon drives sync runs from a ticker and from export changes.
type daemon struct {
	runner    *engine.Runner
	logger    *slog.Logger
	interval  time.Duration
	changes   <-chan entity.Type
	watchErrs <-chan error
}

// run blocks until ctx is cancelled. Failed cycles are logged by the
// controllers and retried on the next trigger; they never stop the loop.
func (d *daemon) run(ctx context.Context) error {
	d.sync(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			d.sync(ctx)

		case typ, ok := <-d.changes:
			if !ok {
				d.changes = nil
				continue
			}
			d.sync(ctx, typ)

		case err, ok := <-d.watchErrs:
			if !ok {
				d.watchErrs = nil
				continue
			}
			d.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (d *daemon) sync(ctx context.Context, types ...entity.Type) {
	if ctx.Err() != nil {
		return
	}
	if _, err := d.runner.Run(ctx, types...); err != nil {
		d.logger.Warn("Sync run finished with errors", "error", err)
	}
}
