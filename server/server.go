// Package server assembles the service context and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stevemurr/simple-data-server/config"
	"github.com/stevemurr/simple-data-server/handler"
	"github.com/stevemurr/simple-data-server/localdata"
	"github.com/stevemurr/simple-data-server/seed"
	"github.com/stevemurr/simple-data-server/store"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Service is the process-wide context. It is built once by New and only
// read afterwards.
type Service struct {
	Config  *config.Config
	Log     zerolog.Logger
	Conn    *store.Connection
	Local   *localdata.Loader
	Handler *handler.Handler
	Seeded  seed.Result
}

type options struct {
	conn        *store.Connection
	handlerOpts []handler.Option
}

// Option configures New.
type Option func(*options)

// WithConnection uses conn instead of connecting from the config.
func WithConnection(conn *store.Connection) Option {
	return func(o *options) { o.conn = conn }
}

// WithHandlerOptions passes extra options through to handler.New.
func WithHandlerOptions(opts ...handler.Option) Option {
	return func(o *options) { o.handlerOpts = append(o.handlerOpts, opts...) }
}

// StoreParams maps the configuration onto store connection parameters.
func StoreParams(cfg *config.Config) store.Params {
	return store.Params{
		Backend:   cfg.Backend,
		Endpoint:  cfg.Endpoint,
		Key:       cfg.Key,
		Database:  cfg.Database,
		Container: cfg.Container,
	}
}

// Connect makes the single startup connection attempt. A failure is logged
// and the returned Connection is in the failed state.
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) *store.Connection {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	conn := store.Connect(ctx, StoreParams(cfg), log)
	if conn.State() != store.StateConnected {
		log.Warn().Msg("continuing without store; /data will return errors")
	}
	return conn
}

// New connects to the store, seeds it from the local file when allowed and
// builds the HTTP handler.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) *Service {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	conn := o.conn
	if conn == nil {
		conn = Connect(ctx, cfg, log)
	}
	local := localdata.New(cfg.DataFile, log)

	s := &Service{
		Config: cfg,
		Log:    log,
		Conn:   conn,
		Local:  local,
		Seeded: seed.Run(ctx, cfg.Strict(), conn, local, log),
	}

	hopts := []handler.Option{
		handler.WithLogger(log),
		handler.WithDebug(cfg.Debug()),
		handler.WithAllowedOrigins(cfg.AllowedOrigins),
	}
	s.Handler = handler.New(conn, local, append(hopts, o.handlerOpts...)...)
	return s
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains in-flight requests
// and closes the store.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.Log.Info().
			Str("addr", ln.Addr().String()).
			Str("mode", string(s.Config.Mode)).
			Str("store", s.Conn.State().String()).
			Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		s.Log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	case err = <-serverErr:
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := s.Conn.Close(closeCtx); cerr != nil {
		s.Log.Error().Err(cerr).Msg("closing store")
	}
	return err
}
