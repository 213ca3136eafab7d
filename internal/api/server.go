package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"go.uber.org/zap"
)

// ErrDisabled is returned by NewServer when the API is switched off.
var ErrDisabled = errors.New("api server disabled")

// Config defines API server configuration
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second per client IP
	RateBurst       int           `yaml:"rate_burst"`
	Compression     bool          `yaml:"compression"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DefaultConfig returns a loopback-only configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		ListenAddr:      "127.0.0.1:8380",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RateLimit:       20,
		RateBurst:       40,
		Compression:     true,
	}
}

// Controller is the part of the control loop the API exposes.
type Controller interface {
	Start()
	Stop()
	Enabled() bool
	Snapshot() automation.Snapshot
	Stats() automation.ControllerStats
	Summary() automation.MetricsSummary
	DisableOptimization(id string) error
	TriggerTick(name automation.TaskName) (bool, error)
	OnEvent(handler automation.EventHandler) func()
}

// Response represents API response format
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// Server exposes the controller over HTTP and streams its events over
// WebSocket.
type Server struct {
	logger     *zap.Logger
	config     Config
	controller Controller
	router     *mux.Router
	server     *http.Server
	limiter    *IPRateLimiter
	events     *EventStreamer
	metrics    http.Handler

	panicsRecovered atomic.Uint64
}

// Option customizes a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a new API server
func NewServer(config Config, logger *zap.Logger, controller Controller, opts ...Option) (*Server, error) {
	if !config.Enabled {
		return nil, ErrDisabled
	}
	if controller == nil {
		return nil, fmt.Errorf("api server requires a controller")
	}

	s := &Server{
		logger:     logger,
		config:     config,
		controller: controller,
		limiter:    NewIPRateLimiter(config.RateLimit, config.RateBurst),
		events:     NewEventStreamer(logger.Named("events"), controller, config.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupRoutes(); err != nil {
		s.events.Close()
		return nil, err
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("Starting API server", zap.String("listen_addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	return nil
}

// PanicsRecovered returns the number of handler panics turned into 500s.
func (s *Server) PanicsRecovered() uint64 {
	return s.panicsRecovered.Load()
}

// Shutdown closes event streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	s.events.Close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() error {
	s.router = mux.NewRouter()
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.corsMiddleware)
	api.Use(s.loggingMiddleware)
	if s.config.Compression {
		wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
		if err != nil {
			return fmt.Errorf("failed to build gzip wrapper: %w", err)
		}
		api.Use(func(next http.Handler) http.Handler { return wrapper(next) })
	}

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/system/start", s.handleSystemStart).Methods(http.MethodPost)
	api.HandleFunc("/system/stop", s.handleSystemStop).Methods(http.MethodPost)
	api.HandleFunc("/optimizations/{id}/disable", s.handleDisableOptimization).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{name}/tick", s.handleTriggerTick).Methods(http.MethodPost)
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	// Outside the gzip subrouter: hijacked connections cannot be compressed.
	s.router.HandleFunc("/ws/events", s.events.ServeHTTP)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "not found")
	})
	return nil
}

// sendJSON sends JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) sendData(w http.ResponseWriter, data interface{}) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Data: data, Time: time.Now()})
}

// sendError sends error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, Response{Success: false, Error: message, Time: time.Now()})
}
