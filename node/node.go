// Package node assembles a drive node from its configuration: storage,
// the remote state client, the protocol engine, the rate limiter, the
// application, and the gRPC and metrics servers.
package node

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/drive/app"
	"github.com/blockberries/drive/config"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/dpp/isolation"
	drivegrpc "github.com/blockberries/drive/grpc"
	"github.com/blockberries/drive/metrics"
	"github.com/blockberries/drive/ratelimit"
	"github.com/blockberries/drive/server"
	"github.com/blockberries/drive/storage"
	"github.com/blockberries/drive/updatestate"
)

// Node is a running drive application.
type Node struct {
	cfg config.Config
	log zerolog.Logger

	db       *badger.DB
	remote   *updatestate.Client
	app      *app.App
	service  *drivegrpc.GRPCServer
	grpc     *grpc.Server
	metrics  *metrics.Server
	registry *prometheus.Registry

	mu       sync.Mutex
	listener net.Listener
}

// New builds a node. Nothing listens until Start.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:      cfg,
		log:      log.With().Str("component", "node").Logger(),
		registry: prometheus.NewRegistry(),
	}

	var err error
	defer func() {
		if err != nil {
			n.closeResources()
		}
	}()

	n.db, err = storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("could not open storage: %w", err)
	}

	n.remote, err = updatestate.Dial(ctx, cfg.UpdateStateAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	provider, err := app.NewDataProvider(n.remote, storage.NewIdentityRepository(n.db), cfg.ContractCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create data provider: %w", err)
	}

	var engine dpp.Protocol = dpp.New(provider)
	if cfg.Isolation.Enabled {
		engine, err = newIsolatedEngine(cfg.Isolation, provider, log, n.registry)
		if err != nil {
			return nil, err
		}
	}

	params := app.Params{
		Engine:           engine,
		DataProvider:     provider,
		Remote:           n.remote,
		DB:               n.db,
		RateLimitEnabled: cfg.RateLimiter.Enabled,
	}
	if cfg.RateLimiter.Enabled {
		rateOpts := []ratelimit.Option{
			ratelimit.WithLogger(log),
			ratelimit.WithMetrics(metrics.NewRateLimiterCollector(n.registry)),
		}
		var limiter *ratelimit.Limiter
		limiter, err = ratelimit.New(cfg.RateLimiter.Config, rateOpts...)
		if err != nil {
			return nil, err
		}
		params.Limiter = limiter
		params.Quotas, err = ratelimit.NewLedger(cfg.RateLimiter.Config, rateOpts...)
		if err != nil {
			return nil, err
		}
	}

	n.app, err = app.New(params,
		app.WithLogger(log),
		app.WithMetrics(metrics.NewExecutionCollector(n.registry)))
	if err != nil {
		return nil, err
	}

	n.service = drivegrpc.NewGRPCServer(n.app, server.WithLogger(log))
	n.grpc = grpc.NewServer()
	n.service.Register(n.grpc)

	if cfg.MetricsAddr != "" {
		n.metrics = metrics.NewServer(log, cfg.MetricsAddr, n.registry)
	}
	return n, nil
}

func newIsolatedEngine(cfg config.IsolationConfig, provider dpp.DataProvider, log zerolog.Logger, reg prometheus.Registerer) (*isolation.IsolatedDpp, error) {
	snapshot, err := isolation.CreateSnapshot(isolation.DefaultBundles()...)
	if err != nil {
		return nil, fmt.Errorf("could not create isolation snapshot: %w", err)
	}
	return isolation.New(snapshot, provider, cfg.Options(),
		isolation.WithLogger(log),
		isolation.WithMetrics(metrics.NewSandboxCollector(reg)))
}

// Start listens on the configured address and serves in the background.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", n.cfg.ListenAddr, err)
	}

	n.mu.Lock()
	n.listener = lis
	n.mu.Unlock()

	go func() {
		if err := n.grpc.Serve(lis); err != nil {
			n.log.Error().Err(err).Msg("grpc server stopped")
		}
	}()
	if n.metrics != nil {
		n.metrics.Start()
	}

	n.log.Info().
		Str("address", lis.Addr().String()).
		Bool("isolation", n.cfg.Isolation.Enabled).
		Bool("rate_limiter", n.cfg.RateLimiter.Enabled).
		Msg("node started")
	return nil
}

// Addr returns the address the gRPC service listens on, or nil before
// Start.
func (n *Node) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// App returns the application.
func (n *Node) App() *app.App {
	return n.app
}

// Registry returns the registry all collectors are registered on.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// Stop shuts every component down and reports all failures.
func (n *Node) Stop(ctx context.Context) error {
	var result *multierror.Error

	if n.grpc != nil {
		n.grpc.GracefulStop()
	}
	if n.metrics != nil {
		if err := n.metrics.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := n.closeResources(); err != nil {
		result = multierror.Append(result, err)
	}

	n.log.Info().Msg("node stopped")
	return result.ErrorOrNil()
}

func (n *Node) closeResources() error {
	var result *multierror.Error
	if n.remote != nil {
		if err := n.remote.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("update state client: %w", err))
		}
		n.remote = nil
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage: %w", err))
		}
		n.db = nil
	}
	return result.ErrorOrNil()
}
