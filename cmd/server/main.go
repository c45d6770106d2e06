// Command server runs the example payment endpoint behind an error budget.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/KanavDutta/errorfence/metrics"
	"github.com/KanavDutta/errorfence/pkg/errorfence"
	"github.com/KanavDutta/errorfence/store"
)

var (
	configPath      = flag.String("config", "", "Path to a YAML config file (overrides $ERRORFENCE_CONFIG)")
	port            = flag.String("port", "", "Port to listen on (overrides $PORT, default 8080)")
	shutdownTimeout = flag.Duration("shutdown_timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		klog.Exitf("errorfence: %v", err)
	}
}

func run(ctx context.Context) error {
	config, err := loadConfig(firstNonEmpty(*configPath, os.Getenv("ERRORFENCE_CONFIG")), os.Getenv)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.NewMetrics()

	fence, err := errorfence.New(
		errorfence.WithConfig(config),
		errorfence.WithRecorder(stats),
		errorfence.WithRecorder(metrics.NewPrometheus(reg)),
	)
	if err != nil {
		return fmt.Errorf("building fence: %w", err)
	}
	defer fence.Close()

	if rs, ok := fence.Store().(*store.RedisStore); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return fmt.Errorf("connecting to Redis at %s: %w", config.Store.Redis.Addr, err)
		}
		klog.Infof("Connected to Redis at %s", config.Store.Redis.Addr)
	} else {
		klog.Warning("Using in-memory storage; budgets are not shared between instances")
	}
	if config.AdminToken == "" {
		klog.Info("No admin token configured; /buckets routes are disabled")
	}

	addr := ":" + firstNonEmpty(*port, os.Getenv("PORT"), "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(fence, stats, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		klog.Infof("errorfence listening on %s (capacity=%d, refill_interval=%s, backend=%s)",
			addr, config.Capacity, config.RefillInterval, config.Store.Backend)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		klog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadConfig reads the YAML file at path, if any, then applies the
// environment overlay: REDIS_ADDR switches the store to Redis,
// REDIS_PASSWORD sets its password and ERRORFENCE_ADMIN_TOKEN enables the
// bucket admin routes.
func loadConfig(path string, getenv func(string) string) (*errorfence.Config, error) {
	config := errorfence.NewConfig()
	if path != "" {
		var err error
		if config, err = errorfence.LoadConfigFromFile(path); err != nil {
			return nil, err
		}
		klog.Infof("Loaded configuration from %s", path)
	}

	if addr := getenv("REDIS_ADDR"); addr != "" {
		config.Store.Backend = errorfence.BackendRedis
		config.Store.Redis.Addr = addr
	}
	if password := getenv("REDIS_PASSWORD"); password != "" {
		config.Store.Redis.Password = password
	}
	if token := getenv("ERRORFENCE_ADMIN_TOKEN"); token != "" {
		config.AdminToken = token
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
