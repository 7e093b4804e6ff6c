package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reel-cli/internal/api"
	"github.com/sells-group/reel-cli/internal/pipeline"
)

var (
	servePort          int
	serveSweepInterval time.Duration
	serveDrainTimeout  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for submitting and tracking runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newAPIServer(env).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			newJanitor(env).Run(gctx, serveSweepInterval)
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serveDrainTimeout)
			defer cancel()
			if err := srv.Shutdown(drainCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			if err := env.Orchestrator.Shutdown(drainCtx); err != nil {
				zap.L().Warn("runs still executing at shutdown were failed", zap.Error(err))
			}
			return nil
		})

		return g.Wait()
	},
}

func newAPIServer(env *pipelineEnv) *api.Server {
	return &api.Server{
		Orchestrator:       env.Orchestrator,
		Registry:           env.Registry,
		Pipelines:          env.Pipelines,
		Metrics:            env.Metrics,
		CORSOrigins:        cfg.Server.CORSOrigins,
		StatsLookbackHours: cfg.Store.TTLHours,
	}
}

// newJanitor evicts terminal runs after the configured TTL and fails runs
// left unfinished longer than the run timeout plus a grace period.
func newJanitor(env *pipelineEnv) *pipeline.Janitor {
	runTimeout := time.Duration(cfg.Pipeline.RunTimeoutSecs) * time.Second
	return &pipeline.Janitor{
		Orchestrator: env.Orchestrator,
		Registry:     env.Registry,
		TTL:          time.Duration(cfg.Store.TTLHours) * time.Hour,
		StaleAfter:   2 * runTimeout,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval", 10*time.Minute, "how often expired and orphaned runs are swept")
	serveCmd.Flags().DurationVar(&serveDrainTimeout, "drain-timeout", 30*time.Second, "how long in-flight runs may finish after a shutdown signal")
	rootCmd.AddCommand(serveCmd)
}
