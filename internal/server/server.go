package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
	"ephemcp/internal/presets"
	"ephemcp/pkg/logging"
)

const (
	// Name is the MCP implementation name announced to clients.
	Name = "ephemcp"

	// MCPPath is the streamable-http endpoint path.
	MCPPath = "/mcp"

	shutdownTimeout = 5 * time.Second
)

// Lifecycle is the part of the lifecycle manager the tools drive.
type Lifecycle interface {
	Spawn(ctx context.Context, spec api.ServerSpec) (string, error)
	WaitUntilReady(ctx context.Context, id string, timeout time.Duration) (api.Endpoint, error)
	Status(ctx context.Context, id string) (api.ServerHandle, error)
	Delete(ctx context.Context, id string) error
	Handles() []api.ServerHandle
	Config() config.LifecycleConfig
}

// Presets looks up named server specs.
type Presets interface {
	Get(name string) (presets.Preset, error)
	List() []presets.Preset
}

// Options configures a Server.
type Options struct {
	Config    config.ServerConfig
	Lifecycle Lifecycle
	Presets   Presets
	// Metrics is mounted at Config.MetricsPath on HTTP transports when set.
	Metrics http.Handler
	Version string
}

// Server is the MCP front end of ephemcp.
type Server struct {
	opts Options
	mcp  *server.MCPServer

	mu          sync.Mutex
	httpServer  *http.Server
	stdioServer *server.StdioServer
	cancel      context.CancelFunc
	addr        string
	done        chan struct{}
}

// New builds the MCP server and registers the tools. Nothing is served until
// Start is called.
func New(opts Options) (*Server, error) {
	if opts.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle manager is required")
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Config.Transport == "" {
		opts.Config.Transport = config.MCPTransportStreamableHTTP
	}

	s := &Server{opts: opts}
	s.mcp = server.NewMCPServer(
		Name,
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Addr returns the bound listener address of an HTTP transport, or the empty
// string before Start or for stdio.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start begins serving the configured transport. HTTP listeners are bound
// before Start returns so address errors surface here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return fmt.Errorf("MCP server already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	cfg := s.opts.Config
	switch cfg.Transport {
	case config.MCPTransportStdio:
		logging.Info("Server", "Starting MCP server with stdio transport")
		s.stdioServer = server.NewStdioServer(s.mcp)
		stdio := s.stdioServer
		done := s.done
		go func() {
			defer close(done)
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("Server", err, "Stdio server error")
			}
		}()
		return nil

	case config.MCPTransportSSE, config.MCPTransportStreamableHTTP:
	default:
		cancel()
		s.done = nil
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		s.done = nil
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = listener.Addr().String()

	handler := s.handler(cfg, s.addr)
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Server", "Starting MCP server with %s transport on %s", cfg.Transport, s.addr)
	httpServer := s.httpServer
	done := s.done
	go func() {
		defer close(done)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server", err, "HTTP server error")
		}
	}()
	return nil
}

// handler builds the mux for the HTTP transports.
func (s *Server) handler(cfg config.ServerConfig, addr string) http.Handler {
	mux := http.NewServeMux()
	if s.opts.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, s.opts.Metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.registerREST(mux)

	if cfg.Transport == config.MCPTransportSSE {
		sse := server.NewSSEServer(
			s.mcp,
			server.WithBaseURL("http://"+addr),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		mux.Handle("/sse", sse)
		mux.Handle("/message", sse)
		return mux
	}

	mux.Handle(MCPPath, server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(MCPPath)))
	return mux
}

// Stop shuts the transport down and waits for the serve loop to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return fmt.Errorf("MCP server not started")
	}
	logging.Info("Server", "Stopping MCP server")

	cancel := s.cancel
	httpServer := s.httpServer
	done := s.done
	s.mu.Unlock()

	cancel()

	var err error
	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(ctx, shutdownTimeout)
		defer stop()
		if err = httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server", err, "Error shutting down HTTP server")
		}
	}

	// The stdio reader may stay blocked on stdin; do not wait for it.
	if httpServer != nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
	}

	s.mu.Lock()
	s.httpServer = nil
	s.stdioServer = nil
	s.cancel = nil
	s.done = nil
	s.addr = ""
	s.mu.Unlock()
	return err
}
