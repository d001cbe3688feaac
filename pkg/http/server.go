package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
	"callcoach-server/pkg/metrics"
	"callcoach-server/pkg/version"
)

// Server is the HTTP front of the service: health probes, Prometheus
// metrics, the REST API, and the live analysis websocket.
type Server struct {
	config     *config.HTTPConfig
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time

	// Optional collaborators for health reporting, set before Start.
	db    Pinger
	queue QueueInspector
	amqp  BrokerStatus
	hub   *AnalysisHub
}

// Pinger reports persistence reachability. Implemented by database.Database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector exposes queue depth for health reporting. Implemented by
// the pipeline queues.
type QueueInspector interface {
	Size(ctx context.Context) (int, error)
}

// BrokerStatus reports the event broker connection. Implemented by
// messaging.AMQPClient.
type BrokerStatus interface {
	Enabled() bool
	IsConnected() bool
}

// NewServer creates the server and registers the health and metrics
// endpoints. API routes are mounted separately.
func NewServer(logger *logrus.Logger, cfg *config.HTTPConfig) *Server {
	server := &Server{
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("GET /health", server.HealthHandler)
	mux.HandleFunc("GET /health/live", server.LivenessHandler)
	mux.HandleFunc("GET /health/ready", server.ReadinessHandler)

	if cfg.EnableMetrics {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      serverHeaderMiddleware(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// MountAPI registers the REST API routes.
func (s *Server) MountAPI(handler *Handler) {
	handler.Register(s.mux)
	s.logger.Info("API routes registered under /api/v1")
}

// MountWebSocket registers the live analysis event endpoint.
func (s *Server) MountWebSocket(hub *AnalysisHub) {
	s.hub = hub
	s.mux.HandleFunc("GET /ws/analysis", hub.ServeWS)
	s.logger.Info("Analysis WebSocket endpoint registered at /ws/analysis")
}

// SetDatabase wires the persistence health check.
func (s *Server) SetDatabase(db Pinger) {
	s.db = db
}

// SetQueue wires the job queue health check.
func (s *Server) SetQueue(queue QueueInspector) {
	s.queue = queue
}

// SetBroker wires the AMQP health check.
func (s *Server) SetBroker(broker BrokerStatus) {
	s.amqp = broker
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func serverHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next.ServeHTTP(w, r)
	})
}
