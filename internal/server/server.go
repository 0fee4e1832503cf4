// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nutrition-coach/pkg/logger"
)

type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(port string, api *API, logger *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// Router wires every route of the coach API.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger), cors(a.allowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(authRequired(a.tokens))
	{
		users := api.Group("/users")
		users.POST("/register", a.register)
		users.DELETE("/me", a.deleteAccount)

		plans := api.Group("/plans")
		plans.POST("/generate", a.generatePlan)
		plans.GET("/history", a.planHistory)
		plans.GET("/:id", a.getPlan)
		plans.PATCH("/complete-meal", a.completeMeal)

		fb := api.Group("/feedback")
		fb.POST("", a.submitFeedback)
		fb.GET("/adjustments", a.previewAdjustments)

		notifications := api.Group("/notifications")
		notifications.POST("/devices", a.registerDevice)
		notifications.POST("/telegram-link", a.telegramLink)
	}

	return r
}
