package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"accordchain/config"
	"accordchain/core"
	"accordchain/core/events"
	"accordchain/core/genesis"
	"accordchain/observability"
	"accordchain/observability/logging"
	"accordchain/observability/otel"
	"accordchain/rpc"
	"accordchain/storage"
)

const (
	serviceName    = "accordd"
	envVar         = "ACCORD_ENV"
	idempotencyTTL = 24 * time.Hour
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if path := strings.TrimSpace(*genesisFlag); path != "" {
		cfg.GenesisFile = path
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("accordd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := otel.Init(ctx, cfg.Telemetry.OTel(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	broker := events.NewBroker(0)
	node, err := openNode(db, cfg, logger, broker)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	server := rpc.NewServer(node, cfg.RPC.ServerConfig(os.Getenv), logger)
	server.SetEventSource(broker)
	if path := strings.TrimSpace(cfg.IdempotencyDB); path != "" {
		store, err := rpc.NewIdempotencyStore(path)
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer store.Close()
		server.SetIdempotencyStore(store)
		g.Go(func() error {
			pruneIdempotency(gctx, store, logger)
			return nil
		})
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr) })
	}

	logger.Info("accordd started",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.Uint64("block_time", node.BlockTime()))
	g.Go(func() error { return server.ListenAndServe(gctx, cfg.RPCAddress) })
	return g.Wait()
}

// openNode applies genesis on first start and builds the executor from the
// configured policies. Committed events go to metrics, the debug log and sinks.
func openNode(db storage.Database, cfg *config.Config, logger *slog.Logger, sinks ...events.Emitter) (*core.Node, error) {
	spec, err := cfg.GenesisSpec()
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	applied, err := genesis.Apply(db, spec)
	if err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", slog.Int("accounts", len(spec.Allocations())))
	}

	policies, err := buildPolicies(cfg)
	if err != nil {
		return nil, err
	}
	node, err := core.NewNode(db, policies, logger)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	emitters := events.Fanout{observability.Events(), eventLogger{logger: logger}}
	node.SetEmitter(append(emitters, sinks...))
	return node, nil
}

func buildPolicies(cfg *config.Config) (core.Policies, error) {
	reg, err := cfg.Registry.Policy()
	if err != nil {
		return core.Policies{}, err
	}
	arb, err := cfg.Arbitration.Policy()
	if err != nil {
		return core.Policies{}, err
	}
	return core.Policies{Registry: reg, Escrow: cfg.Escrow.Policy(), Arbitration: arb}, nil
}

// eventLogger writes committed contract events at debug level.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	p, ok := evt.(events.Payload)
	if !ok || p.Event() == nil {
		return
	}
	payload := p.Event()
	l.logger.Debug("contract event", slog.String("type", payload.Type), slog.Any("attributes", payload.Attributes))
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func pruneIdempotency(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune(ctx, idempotencyTTL)
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys pruned", slog.Int64("removed", removed))
			}
		}
	}
}
