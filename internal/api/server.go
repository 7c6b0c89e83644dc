// Package api is the operator-facing HTTP boundary: boosts, registry
// inspection, executor callbacks and manual runs.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/metrics"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/policy"
	"RefreshSentinel/internal/registry"
	"RefreshSentinel/internal/scheduler"
)

// Server wires the gin engine to the scheduler components.
type Server struct {
	Engine  *gin.Engine
	Store   registry.Store
	Boosts  *boost.Service
	Runner  *scheduler.Runner
	Metrics *metrics.Metrics
	APIKey  string
	Now     func() time.Time

	// runCtx outlives the request that triggers a run.
	runCtx context.Context
}

// NewServer builds the router. An empty apiKey leaves /admin open.
func NewServer(runCtx context.Context, store registry.Store, boosts *boost.Service, runner *scheduler.Runner, m *metrics.Metrics, apiKey string) *Server {
	s := &Server{
		Engine:  gin.New(),
		Store:   store,
		Boosts:  boosts,
		Runner:  runner,
		Metrics: m,
		APIKey:  apiKey,
		Now:     time.Now,
		runCtx:  runCtx,
	}
	s.Engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.Metrics != nil {
		s.Engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	admin := s.Engine.Group("/admin", s.requireAPIKey)
	{
		admin.POST("/boost", s.applyBoost)
		admin.GET("/symbols", s.listSymbols)
		admin.GET("/symbols/:symbol", s.getSymbol)
		admin.POST("/symbols", s.createSymbol)
		admin.POST("/outcomes", s.reportOutcome)
		admin.POST("/run", s.triggerRun)
		admin.GET("/runs/last", s.lastRun)
	}
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.Engine }

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.APIKey == "" {
		c.Next()
		return
	}
	got := c.GetHeader("x-api-key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.APIKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) applyBoost(c *gin.Context) {
	var req model.BoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "error": err.Error()})
		return
	}
	resp, err := s.Boosts.Apply(c.Request.Context(), req)
	switch {
	case errors.Is(err, boost.ErrPolicyViolation):
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "error": err.Error()})
	case errors.Is(err, boost.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"accepted": false, "error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("symbol", req.Symbol).Msg("apply boost")
		c.JSON(http.StatusInternalServerError, gin.H{"accepted": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// SymbolView is a registry entry with its derived priority.
type SymbolView struct {
	model.SymbolState
	Version                uint64   `json:"version"`
	EffectivePriority      int      `json:"effective_priority"`
	EffectivePriorityLabel string   `json:"effective_priority_label"`
	ActiveBoostKinds       []string `json:"active_boost_kinds"`
}

func (s *Server) view(e registry.Entry) SymbolView {
	now := s.Now()
	return SymbolView{
		SymbolState:            e.State,
		Version:                e.Version,
		EffectivePriority:      boost.EffectivePriority(e.State, now),
		EffectivePriorityLabel: boost.Label(e.State, now),
		ActiveBoostKinds:       boost.Kinds(e.State, now),
	}
}

func (s *Server) listSymbols(c *gin.Context) {
	entries, err := s.Store.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]SymbolView, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.view(e))
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out, "count": len(out)})
}

func (s *Server) getSymbol(c *gin.Context) {
	e, err := s.Store.Get(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.view(e))
}

type createSymbolRequest struct {
	Symbol       string `json:"symbol" binding:"required"`
	BasePriority int    `json:"base_priority" binding:"required"`
}

func (s *Server) createSymbol(c *gin.Context) {
	var req createSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BasePriority < policy.MinPriority || req.BasePriority > policy.MaxPriority {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_priority must be in [1,5]"})
		return
	}
	st := model.NewSymbolState(req.Symbol, req.BasePriority)
	if st.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	err := s.Store.Create(c.Request.Context(), st)
	if errors.Is(err, registry.ErrExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "symbol already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, s.view(registry.Entry{State: st, Version: 1}))
}

func (s *Server) reportOutcome(c *gin.Context) {
	var o model.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.Runner.ApplyOutcome(c.Request.Context(), o)
	switch {
	case errors.Is(err, scheduler.ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrLostUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"applied": true})
	}
}

type runRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) triggerRun(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if s.Runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "error": scheduler.ErrAlreadyRunning.Error()})
		return
	}
	go func() {
		if _, err := s.Runner.Run(s.runCtx, scheduler.RunOptions{Symbols: req.Symbols}); err != nil {
			log.Error().Err(err).Msg("manual run failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) lastRun(c *gin.Context) {
	last, err := s.Runner.LastRun()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}
