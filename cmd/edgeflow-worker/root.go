package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edgeflow.io/edgeflow/pkg/config"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
	"edgeflow.io/edgeflow/pkg/worker"
	"edgeflow.io/edgeflow/private/lifecycle"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "edgeflow-worker",
		Short: "runs the edgeflow worker-side streaming runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "edgeflow-worker.yaml", "path to the worker configuration file")
	return root
}

// runWorker loads configuration, stands up the buffer pool, the
// worker-thread pool and the metrics endpoint under a lifecycle.Group,
// and blocks until SIGINT/SIGTERM.
func runWorker(ctx context.Context, configPath string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	instanceID := uuid.New()
	log.Info("starting edgeflow worker", zap.String("instance_id", instanceID.String()), zap.String("config", configPath))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pool := tuplebuf.NewPool(cfg.Pool.BufferCount, cfg.Pool.BufferSizeBytes, tuplebuf.WithLogger(log))
	log.Info("buffer pool ready", zap.Int("buffer_count", cfg.Pool.BufferCount), zap.Int("buffer_size_bytes", pool.BufferSize()))

	pl := newWorkerPool(cfg.WorkerPool, log)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group := lifecycle.NewGroup(log)
	group.Add(lifecycle.Item{
		Name: "worker-pool",
		Run:  pl.Start,
		Close: func() error {
			pl.Stop()
			return nil
		},
	})

	var metricsSrv *metricsServer
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv = startMetricsServer(cfg.Metrics, log)
		group.Add(lifecycle.Item{
			Name:  "metrics",
			Close: metricsSrv.Close,
		})
	}

	g, runCtx := errgroup.WithContext(ctx)
	group.Run(runCtx, g)

	log.Info("worker runtime ready",
		zap.Int("buffer_count", cfg.Pool.BufferCount),
		zap.String("worker_pool_kind", cfg.WorkerPool.Kind))

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	closeErr := group.Close()
	runErr := g.Wait()

	if closeErr != nil {
		return closeErr
	}
	return runErr
}

func newWorkerPool(cfg config.WorkerPoolConfig, log *zap.Logger) worker.Pool {
	switch cfg.Kind {
	case "static":
		return worker.NewStaticPool(cfg.NumThreads, cfg.QueueLength, log)
	default:
		return worker.NewDynamicPool(cfg.NumThreads, cfg.QueueLength, log)
	}
}

type metricsServer struct {
	close func() error
}

func (m *metricsServer) Close() error { return m.close() }

func startMetricsServer(cfg config.MetricsConfig, log *zap.Logger) *metricsServer {
	srv, errCh := config.ServeMetrics(cfg)
	go func() {
		if err := <-errCh; err != nil && err.Error() != "http: Server closed" {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return &metricsServer{close: func() error {
		return srv.Shutdown(context.Background())
	}}
}
