package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DIvanCode/rwlatch/internal/api/client"
	"github.com/DIvanCode/rwlatch/internal/api/handler"
	"github.com/DIvanCode/rwlatch/internal/lib/locker"
	"github.com/DIvanCode/rwlatch/internal/monitor"
	"github.com/DIvanCode/rwlatch/internal/stress"
	"github.com/DIvanCode/rwlatch/pkg/config"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rwlatch",
		Short:         "Exercise and inspect reader-writer latches",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newStressCmd(), newStatsCmd())
	return root
}

func newStressCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		duration   time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run reader and writer workers against a latch and check exclusion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("duration") {
				cfg.Stress.Duration = duration
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			return runStress(cmd.Context(), log, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to yaml config")
	cmd.Flags().StringVar(&addr, "addr", "", "serve /latches and /metrics on this address while running")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "how long to run")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runStress(ctx context.Context, log *slog.Logger, cfg config.Config, out io.Writer) error {
	l, err := latch.NewRWLatchWithConfig(log, cfg.Latch)
	if err != nil {
		return fmt.Errorf("failed to create latch: %w", err)
	}
	lk := locker.NewLocker(log, cfg.Latch)

	mon := monitor.NewMonitor()
	if err := mon.Register(l); err != nil {
		return err
	}
	defer mon.Unregister(l.Name())
	if err := mon.RegisterTable("keys", lk); err != nil {
		return err
	}
	log.Debug(fmt.Sprintf("monitoring latches %v", mon.Names()))

	if cfg.HTTP.Addr != "" {
		reg := prometheus.NewRegistry()
		if err := reg.Register(mon); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}

		mux := chi.NewRouter()
		handler.NewHandler(mon, reg).Register(mux)

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: mux,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(fmt.Sprintf("error serving http: %v", err))
			}
		}()
		defer shutdown(srv)
	}

	runner, err := stress.NewRunner(log, cfg.Stress, l, lk)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if encodeErr := encodeJSON(out, report); encodeErr != nil {
		return encodeErr
	}
	if stress.IsViolation(err) {
		return fmt.Errorf("stress run %s failed: %w", report.ID, err)
	}
	return err
}

func newStatsCmd() *cobra.Command {
	var (
		endpoint string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print latch stats from a running stress server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			c := client.NewClient(endpoint)
			if name != "" {
				stats, err := c.Latch(ctx, name)
				if err != nil {
					return err
				}
				return encodeJSON(cmd.OutOrStdout(), stats)
			}

			latches, err := c.Latches(ctx)
			if err != nil {
				return err
			}
			return encodeJSON(cmd.OutOrStdout(), latches)
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "http://localhost:8080", "server endpoint")
	cmd.Flags().StringVarP(&name, "latch", "l", "", "only this latch")
	return cmd
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
