package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/usage"
)

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Logger        log.Logger
	ChatService   *chat.Service       // Required
	Chatbots      *chat.Store         // Required
	Conversations *conversation.Store // Required
	Index         *index.Store        // Required
	Embedder      Embedder            // Required
	Counter       TokenCounter        // Required
	Meter         *usage.Meter        // Optional: nil disables usage metering
	Pool          *pgxpool.Pool       // Optional: nil disables pool stats in /ready
	Registry      *prometheus.Registry
	TrustProxy    bool // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst     int  // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.ChatService == nil:
		return nil, errors.New("chat service is required")
	case cfg.Chatbots == nil:
		return nil, errors.New("chatbot store is required")
	case cfg.Conversations == nil:
		return nil, errors.New("conversation store is required")
	case cfg.Index == nil:
		return nil, errors.New("index store is required")
	case cfg.Embedder == nil:
		return nil, errors.New("embedder is required")
	case cfg.Counter == nil:
		return nil, errors.New("token counter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{service: cfg.ChatService, convs: cfg.Conversations, logger: logger}
	dh := &documentHandler{
		store:    cfg.Index,
		embedder: cfg.Embedder,
		meter:    cfg.Meter,
		counter:  cfg.Counter,
		logger:   logger,
	}
	bh := &chatbotHandler{store: cfg.Chatbots, logger: logger}

	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", ch.messages)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.deleteConversation)

	// Documents
	mux.HandleFunc("POST /api/v1/documents", dh.create)
	mux.HandleFunc("GET /api/v1/documents/{id}", dh.get)
	mux.HandleFunc("PUT /api/v1/documents/{id}/chunks", dh.ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.remove)

	// Chatbots and model configs
	mux.HandleFunc("POST /api/v1/chatbots", bh.create)
	mux.HandleFunc("GET /api/v1/chatbots", bh.list)
	mux.HandleFunc("GET /api/v1/chatbots/{id}", bh.get)
	mux.HandleFunc("PUT /api/v1/chatbots/{id}/documents", bh.setDocuments)
	mux.HandleFunc("DELETE /api/v1/chatbots/{id}", bh.remove)
	mux.HandleFunc("POST /api/v1/llm-configs", bh.createLLMConfig)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Probes and metrics bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	if cfg.Registry != nil {
		topMux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
