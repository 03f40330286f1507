package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/activity"
	"github.com/staffportal/staffportal/pkg/apiserver/handlers"
	"github.com/staffportal/staffportal/pkg/apiserver/middleware"
	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/livehub"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/pipeline"
)

// Dependencies are the services behind the HTTP and WebSocket routes.
type Dependencies struct {
	Pipeline      *pipeline.Service
	Notifications *notification.Service
	Activity      *activity.Service
	Hub           *livehub.Hub
	Tokens        middleware.TokenValidator
}

type Server struct {
	router *gin.Engine
	deps   Dependencies
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(s.cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.deps.Hub != nil {
		liveHandler := handlers.NewLiveHandler(s.deps.Hub, s.cfg.CORS.AllowedOrigins, s.cfg.Live.WriteTimeout, s.cfg.Live.PingInterval, s.logger)
		r.GET("/ws", liveHandler.Serve)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(s.deps.Tokens))

	if s.deps.Pipeline != nil {
		pipelineHandler := handlers.NewPipelineHandler(s.deps.Pipeline, s.logger)
		for _, prefix := range []string{"/pipeline", "/pipeline-board"} {
			api.GET(prefix, pipelineHandler.Board)
			api.POST(prefix+"/move", pipelineHandler.Move)
		}
		api.GET("/pipeline/stages", pipelineHandler.Stages)
		api.GET("/pipeline/export.xlsx", pipelineHandler.Export)
		api.GET("/applications/:id/events", pipelineHandler.Events)
	}

	if s.deps.Activity != nil {
		activityHandler := handlers.NewActivityHandler(s.deps.Activity, s.cfg.Documents.MaxUploadBytes, s.logger)
		api.POST("/applications/:id/documents", activityHandler.UploadDocument)
		api.DELETE("/applications/:id/documents/:name", activityHandler.DeleteDocument)
		api.POST("/applications/:id/messages", activityHandler.PostMessage)
	}

	if s.deps.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(s.deps.Notifications, s.logger)
		api.GET("/notifications", notificationHandler.ListUnread)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
