// Package httpapi exposes the orchestration core to remote UIs over HTTP
// and WebSocket.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aj47/acp-remote/internal/conversation"
	"github.com/aj47/acp-remote/internal/history"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/orchestrator"
	"github.com/aj47/acp-remote/internal/progress"
)

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PromptRunner is the slice of the orchestrator the API drives.
type PromptRunner interface {
	Run(ctx context.Context, req orchestrator.Request) orchestrator.Result
	StopSession(uiSessionID string)
}

// Server wires the HTTP surface: prompt driving, progress delivery, history
// browsing, and operational endpoints.
type Server struct {
	runner        PromptRunner
	aggregator    *history.Aggregator
	conversations *conversation.Store
	hub           *progress.Hub
	registry      *prometheus.Registry

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     logging.Logger
}

// Params configures a Server.
type Params struct {
	Addr          string
	Runner        PromptRunner
	Aggregator    *history.Aggregator
	Conversations *conversation.Store
	Hub           *progress.Hub
	Registry      *prometheus.Registry
	Debug         bool
	Logger        logging.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(params Params) *Server {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("HTTPAPI")
	}

	if !params.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	server := &Server{
		runner:        params.Runner,
		aggregator:    params.Aggregator,
		conversations: params.Conversations,
		hub:           params.Hub,
		registry:      params.Registry,
		engine:        engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
	server.httpServer = &http.Server{
		Addr:        params.Addr,
		Handler:     engine,
		ReadTimeout: 30 * time.Second,
		// No write timeout: progress long-polls and websocket streams are
		// intentionally long-lived.
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.registry != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	{
		api.POST("/prompt", s.handlePrompt)
		api.POST("/stop", s.handleStop)

		api.GET("/progress/:conversationID", s.handleProgress)
		api.GET("/stream/:conversationID", s.handleStream)

		api.GET("/history", s.handleHistoryList)
		api.GET("/history/:source/:id", s.handleHistorySession)
		api.POST("/history/continue", s.handleHistoryContinue)

		api.GET("/conversations", s.handleConversationList)
		api.GET("/conversations/:id", s.handleConversationGet)
		api.DELETE("/conversations/:id", s.handleConversationDelete)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"status": "ok"}})
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
