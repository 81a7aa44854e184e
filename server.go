package hyperlockd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"pkt.systems/hyperlockd/internal/clock"
	"pkt.systems/hyperlockd/internal/coordinator"
	"pkt.systems/hyperlockd/internal/dispatch"
	"pkt.systems/hyperlockd/internal/loggingutil"
	"pkt.systems/hyperlockd/internal/metrics"
	"pkt.systems/hyperlockd/internal/nsstore"
	"pkt.systems/hyperlockd/internal/pathutil"
	"pkt.systems/hyperlockd/internal/svcfields"
	"pkt.systems/hyperlockd/internal/wire"
	"pkt.systems/pslog"

	"github.com/fsnotify/fsnotify"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Server wires the namespace store, coordinator, dispatch listener, and
// metrics endpoint into a single runnable process.
type Server struct {
	cfg    Config
	logger pslog.Logger
	clock  clock.Clock

	store          *nsstore.Backend
	svc            *coordinator.Service
	metrics        *metrics.Collector
	dispSrv        *dispatch.Server
	watcher        *nsstore.ExternalChangeWatcher
	tracerProvider *sdktrace.TracerProvider

	ln         net.Listener
	metricsSrv *http.Server
	metricsLn  net.Listener

	watchCancel context.CancelFunc

	mu       sync.Mutex
	shutdown bool
}

// Option configures a Server.
type Option func(*options)

type options struct {
	Logger pslog.Logger
	Clock  clock.Clock
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) { o.Logger = l }
}

// WithClock injects a custom clock implementation, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.Clock = c }
}

// NewServer constructs a hyperlockd Server according to cfg.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	cfg.setDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := loggingutil.EnsureLogger(o.Logger)
	clk := o.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	baseDir, err := pathutil.ExpandUserAndEnv(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("hyperlockd: expand base dir: %w", err)
	}
	store, err := nsstore.Open(baseDir)
	if err != nil {
		return nil, fmt.Errorf("hyperlockd: open namespace store: %w", err)
	}

	wire.MaxFrameLen = uint32(cfg.MaxFrameBytes)

	metricsCollector := metrics.New()

	svc := coordinator.New(coordinator.Config{
		Store:             store,
		Logger:            logger,
		Clock:             clk,
		Metrics:           metricsCollector,
		LeaseInterval:     cfg.LeaseInterval,
		KeepAliveInterval: cfg.KeepAliveInterval,
	})

	dispSrv := dispatch.New(dispatch.Config{
		Service:        svc,
		Logger:         logger,
		TracingEnabled: cfg.EnableTracing,
	})

	srv := &Server{
		cfg:     cfg,
		logger:  svcfields.WithSubsystem(logger, "server"),
		clock:   clk,
		store:   store,
		svc:     svc,
		metrics: metricsCollector,
		dispSrv: dispSrv,
	}

	if cfg.WatchExternalChanges {
		watcher, err := nsstore.WatchExternalChanges(store.BaseDir())
		if err != nil {
			srv.logger.Warn("could not start external change watcher", "error", err)
		} else {
			srv.watcher = watcher
		}
	}

	if cfg.EnableTracing {
		tp, err := setupTracing(context.Background())
		if err != nil {
			srv.logger.Warn("could not initialize tracing", "error", err)
		} else {
			srv.tracerProvider = tp
		}
	}

	return srv, nil
}

// Start binds the wire protocol listener (and metrics listener, if
// configured) and blocks serving connections until Shutdown is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("hyperlockd: listen %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.svc.RunExpirySweeper(context.Background())

	if s.watcher != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.watchCancel = cancel
		s.mu.Unlock()
		integrityLog := svcfields.WithSubsystem(s.logger, "server.integrity")
		go s.watcher.Run(watchCtx,
			func(ev fsnotify.Event) {
				integrityLog.Warn("external change to namespace store detected", "path", ev.Name, "op", ev.Op.String())
			},
			func(err error) {
				integrityLog.Warn("external change watcher error", "error", err)
			},
		)
	}

	if s.cfg.MetricsListen != "" {
		if err := s.startMetricsServer(); err != nil {
			return err
		}
	}

	s.logger.Info("coordinator started",
		"listen", s.cfg.Listen,
		"base_dir", s.store.BaseDir(),
		"lock_owner", s.store.LockOwnerToken(),
	)

	if s.cfg.Verbose {
		s.logger.Info("startup banner",
			"Hyperspace.Lease.Interval", s.cfg.LeaseInterval,
			"Hyperspace.KeepAlive.Interval", s.cfg.KeepAliveInterval,
			"Hyperspace.Master.dir", s.store.BaseDir(),
			"Generation", s.store.Generation(),
		)
	}

	return s.dispSrv.Serve(context.Background(), ln)
}

func (s *Server) startMetricsServer() error {
	ln, err := net.Listen("tcp", s.cfg.MetricsListen)
	if err != nil {
		return fmt.Errorf("hyperlockd: metrics listen %s: %w", s.cfg.MetricsListen, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Handler: mux}
	s.mu.Lock()
	s.metricsSrv = srv
	s.metricsLn = ln
	s.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server error", "error", err)
		}
	}()
	s.logger.Info("metrics endpoint enabled", "listen", s.cfg.MetricsListen)
	return nil
}

// Shutdown stops the listeners, background sweeper, and releases the
// namespace store's advisory lock.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	ln := s.ln
	metricsSrv := s.metricsSrv
	metricsLn := s.metricsLn
	watchCancel := s.watchCancel
	tracerProvider := s.tracerProvider
	s.mu.Unlock()

	if watchCancel != nil {
		watchCancel()
	}

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if metricsLn != nil {
		_ = metricsLn.Close()
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.svc.Shutdown()
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("coordinator stopped")
	return errors.Join(errs...)
}
