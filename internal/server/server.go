// Package server exposes the agent registry and run history over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rahul/agentlab/internal/agent"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/store"
	"github.com/rahul/agentlab/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

// RunReader is the read side of the checkpoint store.
type RunReader interface {
	Load(ctx context.Context, runID string) (workflow.Snapshot, error)
	List(ctx context.Context, limit int) ([]workflow.Snapshot, error)
}

type InvokeRequest struct {
	Agent  string `json:"agent"`
	Input  string `json:"input" binding:"required"`
	ChatID string `json:"chat_id"`
}

type InvokeResponse struct {
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

type Server struct {
	Name   string
	Agents *agent.Registry
	Runs   RunReader
	// Secret is the bearer token required on every route but /healthz.
	// An empty secret disables authentication.
	Secret string

	engine *gin.Engine
}

func New(name string, agents *agent.Registry, runs RunReader, secret string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{Name: name, Agents: agents, Runs: runs, Secret: secret}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", s.health)

	api := r.Group("/", s.authorize)
	api.GET("/info", s.info)
	api.POST("/invoke", s.invoke)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Println("[Server] Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[Server] %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) authorize(c *gin.Context) {
	if s.Secret == "" {
		c.Next()
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.Secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "run": observability.Status()})
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":          s.Name,
		"default_agent": agent.DefaultAgent,
		"agents":        s.Agents.Info(),
	})
}

func (s *Server) invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := s.Agents.Get(req.Agent)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.ChatID != "" {
		ctx = agent.WithChatID(ctx, req.ChatID)
	}
	out, err := a.Runner.Invoke(ctx, req.Input)
	if err != nil {
		log.Printf("[Server] Agent %s failed: %v", a.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, InvokeResponse{Agent: a.Key, Output: out})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.Runs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []workflow.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	snap, err := s.Runs.Load(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, snap)
	}
}
