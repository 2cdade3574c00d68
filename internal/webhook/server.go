package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	runauth "github.com/bionicotaku/lingo-utils-runauth"
)

// Processor handles an authenticated webhook payload.
type Processor func(ctx context.Context, payload map[string]any, claims runauth.Claims) error

// Server is the HTTP surface of the webhook service.
type Server struct {
	router   *gin.Engine
	verifier runauth.Verifier
	process  Processor
	logger   *slog.Logger
	metrics  *metrics
}

// Option customizes a Server.
type Option func(*Server)

// WithProcessor replaces the default payload processor.
func WithProcessor(p Processor) Option {
	return func(s *Server) {
		if p != nil {
			s.process = p
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer wires the router around verifier.
func NewServer(verifier runauth.Verifier, opts ...Option) *Server {
	s := &Server{
		verifier: verifier,
		logger:   slog.Default(),
		metrics:  newMetrics(),
	}
	s.process = s.logPayload
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(requestID())
	router.Use(accessLog(s.logger))
	router.Use(s.metrics.instrument())
	router.Use(recovery(s.logger))
	s.router = router
	s.setupRoutes()

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot())
	s.router.GET("/healthz", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	gate := runauth.GinGate(s.verifier,
		runauth.WithLogger(s.logger),
		runauth.WithOutcomeHook(s.metrics.observeAuth),
	)
	s.router.POST("/webhook", gate, s.handleWebhook())
}
