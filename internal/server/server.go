// Package server exposes the health check and the read-only admin API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/repos"
)

const (
	serviceName           = "gpt-bot"
	topProblemGenerations = 5
)

type Server struct {
	httpServer  *http.Server
	templates   repos.TemplateRepo
	generations repos.GenerationRepo
	log         *logger.Logger
}

func New(addr string, templates repos.TemplateRepo, generations repos.GenerationRepo, baseLog *logger.Logger) *Server {
	s := &Server{
		templates:   templates,
		generations: generations,
		log:         baseLog.With("component", "HTTPServer"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(serviceName), corsMiddleware(), traceContext())

	engine.GET("/healthz", s.health)
	admin := engine.Group("/admin")
	admin.GET("/templates/:name", s.getTemplate)
	admin.GET("/problems/:id/top", s.topForProblem)

	s.httpServer = &http.Server{Addr: addr, Handler: engine}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getTemplate(c *gin.Context) {
	tpl, err := s.templates.GetTemplate(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, repos.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		s.log.Error("failed to fetch template", "template", c.Param("name"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": tpl.Name, "template": tpl.Template})
}

func (s *Server) topForProblem(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid problem id"})
		return
	}

	top, err := s.generations.TopForProblem(c.Request.Context(), problemID, topProblemGenerations)
	if err != nil {
		s.log.Error("failed to fetch top generations", "problem_id", problemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(top))
	for _, gen := range top {
		out = append(out, gin.H{
			"id":        gen.ID,
			"input":     gen.Input,
			"output":    gen.Output,
			"upVotes":   gen.UpVotes,
			"downVotes": gen.DownVotes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"generations": out})
}
