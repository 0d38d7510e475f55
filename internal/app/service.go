package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"ctgmonitor/internal/api"
	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/metrics"
	"ctgmonitor/internal/notify"
	"ctgmonitor/internal/publish"
	"ctgmonitor/internal/registry"
	"ctgmonitor/internal/transport"
	"ctgmonitor/internal/window"
)

// ErrInvalidConfig marks startup failures caused by configuration input.
var ErrInvalidConfig = errors.New("invalid-config")

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable monitoring service.
type Service struct {
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func()
	metrics    *metrics.Metrics
	monitor    *Monitor
	registry   *registry.Client
	publisher  *publish.Publisher
	dispatcher *notify.Dispatcher
	httpSrv    *http.Server
	handler    http.Handler
	cancels    []func()
	readyFlag  atomic.Bool
	clock      clock.Clock

	dialer transport.Dialer
	seed   uint64
}

// ServiceOption overrides a runtime collaborator.
type ServiceOption func(*Service)

// WithDialer replaces the websocket dialer of every stream client.
func WithDialer(dialer transport.Dialer) ServiceOption {
	return func(s *Service) { s.dialer = dialer }
}

// WithSeed fixes the random seed of mock streams.
func WithSeed(seed uint64) ServiceOption {
	return func(s *Service) { s.seed = seed }
}

// WithLogger replaces the configured log sinks.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error; config errors wrap ErrInvalidConfig.
func NewService(source config.ConfigSource, clk clock.Clock, opts ...ServiceOption) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return NewServiceFromConfig(cfg, clk, opts...)
}

// NewServiceFromConfig builds service instance from an already loaded snapshot.
// Params: validated config, clock, and optional overrides.
// Returns: initialized service or setup error.
func NewServiceFromConfig(cfg config.Config, clk clock.Clock, opts ...ServiceOption) (*Service, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	service := &Service{
		cfg:     cfg,
		clock:   clk,
		metrics: metrics.New(true),
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.logger == nil {
		logger, closeLog, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		service.logger = logger
		service.closeLog = closeLog
	}

	monitor, err := NewMonitor(cfg, MonitorDeps{
		Logger:  service.logger,
		Clock:   clk,
		Metrics: service.metrics,
		Dialer:  service.dialer,
		Seed:    service.seed,
	})
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.monitor = monitor
	service.registry = registry.NewClient(cfg.Registry, service.logger, registry.WithClock(clk))

	if err := service.buildPublisher(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildDispatcher(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildHTTPServer()
	return service, nil
}

// Monitor returns the stream pipeline.
func (s *Service) Monitor() *Monitor { return s.monitor }

// Handler returns the HTTP read surface.
func (s *Service) Handler() http.Handler { return s.handler }

// Metrics returns the service collectors.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Ready reports whether streams were started and shutdown has not begun.
func (s *Service) Ready() bool { return s.readyFlag.Load() }

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.dispatcher != nil {
		s.dispatcher.Start(runCtx)
	}
	if err := s.monitor.Start(runCtx); err != nil {
		_ = s.shutdown()
		return err
	}
	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	s.monitor.Stop()
	for _, cancelFn := range s.cancels {
		cancelFn()
	}
	s.cancels = nil
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			s.logger.Error("notify dispatcher close failed", "error", err.Error())
			markErr(fmt.Errorf("notify dispatcher close: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("publisher close failed", "error", err.Error())
			markErr(fmt.Errorf("publisher close: %w", err))
		}
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	for _, cancelFn := range s.cancels {
		cancelFn()
	}
	s.cancels = nil
	if s.dispatcher != nil {
		_ = s.dispatcher.Close()
		s.dispatcher = nil
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
		s.publisher = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildPublisher connects the JetStream fan-out when enabled.
// Params: none.
// Returns: connection error.
func (s *Service) buildPublisher() error {
	if !s.cfg.Publish.NATS.Enabled {
		return nil
	}
	publisher, err := publish.NewPublisher(s.cfg.Publish.NATS, s.logger, s.metrics)
	if err != nil {
		return err
	}
	s.publisher = publisher
	s.cancels = append(s.cancels,
		publisher.Attach(s.monitor.Store()),
		s.monitor.Deriver().Subscribe(publisher.Alert),
	)
	return nil
}

// buildDispatcher wires alert notifications when any channel is enabled.
// Params: none.
// Returns: template error wrapped as invalid config.
func (s *Service) buildDispatcher() error {
	if !s.cfg.Notify.Telegram.Enabled && !s.cfg.Notify.HTTP.Enabled {
		return nil
	}
	dispatcher, err := notify.NewDispatcher(s.cfg.Notify, s.cfg.Service.Name, s.logger, s.metrics)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.dispatcher = dispatcher
	s.cancels = append(s.cancels, s.monitor.Deriver().Subscribe(dispatcher.Notify))
	s.logger.Info("notifications enabled", "channels", dispatcher.Channels())
	return nil
}

// buildHTTPServer wires the read surface with probes and metrics.
// Params: none.
// Returns: none.
func (s *Service) buildHTTPServer() {
	frames := make(map[domain.StreamKind]api.FrameSource, 2)
	var windowOpts window.Options
	for _, kind := range []domain.StreamKind{domain.StreamHeartRate, domain.StreamContractions} {
		refresher := s.monitor.Refresher(kind)
		frames[kind] = refresher
		windowOpts = refresher.Options()
	}
	s.handler = api.NewRouter(api.Config{
		Store:          s.monitor.Store(),
		Alerts:         s.monitor.Deriver(),
		Frames:         frames,
		Registry:       s.registry,
		Reconnect:      s.monitor.Reconnect,
		Window:         windowOpts,
		Clock:          s.clock,
		Ready:          s.readyFlag.Load,
		HealthPath:     s.cfg.HTTP.HealthPath,
		ReadyPath:      s.cfg.HTTP.ReadyPath,
		MetricsPath:    s.cfg.HTTP.MetricsPath,
		MetricsHandler: s.metrics.Handler(),
		Observer:       s.metrics,
		Logger:         s.logger,
	})
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
