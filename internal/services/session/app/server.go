package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/sessionhub/internal/platform/config"
	apperrors "github.com/louisbranch/sessionhub/internal/platform/errors"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
	sessionsqlite "github.com/louisbranch/sessionhub/internal/services/session/storage/sqlite"
)

type serverEnv struct {
	DBPath          string `env:"SESSIONHUB_DB_PATH"`
	DefaultLanguage string `env:"SESSIONHUB_DEFAULT_LANGUAGE"`
	DefaultTimezone string `env:"SESSIONHUB_DEFAULT_TIMEZONE"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "sessions.db")
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		cfg.DefaultLanguage = "en"
	}
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return cfg
}

// Server hosts the session engine, its storage lifecycle, and the gRPC
// health endpoint.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *sessionsqlite.Store
	engine     *Engine
	watcher    *Watcher
	reactor    *Reactor
}

// New creates a configured session server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured session server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	store, err := openSessionStore(env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	engine, err := NewEngine(EngineConfig{
		Journal:  store,
		Sessions: store,
		Defaults: session.Defaults{
			Language: env.DefaultLanguage,
			Timezone: env.DefaultTimezone,
		},
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create session engine: %w", err)
	}
	watcher, err := NewWatcher(engine)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create session watcher: %w", err)
	}
	engine.SetPublisher(watcher)
	reactor, err := NewReactor(engine)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create session reactor: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(errorInterceptor()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		engine:     engine,
		watcher:    watcher,
		reactor:    reactor,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Engine returns the command engine for in-process callers.
func (s *Server) Engine() *Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

// Watcher returns the live query watcher for in-process callers.
func (s *Server) Watcher() *Watcher {
	if s == nil {
		return nil
	}
	return s.watcher
}

// Reactor returns the user cascade reactor for in-process callers.
func (s *Server) Reactor() *Reactor {
	if s == nil {
		return nil
	}
	return s.reactor
}

// Run creates and serves a session server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("session server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close releases session server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.watcher != nil {
		s.watcher.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close session store: %v", err)
		}
	}
}

// errorInterceptor translates domain errors escaping a handler into gRPC
// statuses carrying machine-readable ErrorInfo details.
func errorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		var domainErr *apperrors.Error
		if errors.As(err, &domainErr) {
			return resp, domainErr.ToGRPCStatus()
		}
		return resp, err
	}
}

func openSessionStore(path string) (*sessionsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sessionsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}
