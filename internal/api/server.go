// Package api exposes reconciliation runs, break queries and break workflow
// transitions over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
	"trade-reconciliation/internal/rules"
	"trade-reconciliation/internal/usecase"
)

// Reconciler runs the pipeline for a trade date.
type Reconciler interface {
	Reconcile(ctx context.Context, tradeDate time.Time, opts usecase.RunOptions) (*domain.ReconciliationRun, error)
}

// Queries are the read models.
type Queries interface {
	ListBreaks(ctx context.Context, filter domain.BreakFilter) ([]*domain.Break, error)
	GetBreak(ctx context.Context, id string) (*domain.Break, error)
	BreakEvents(ctx context.Context, id string) ([]domain.BreakEvent, error)
	BreakStats(ctx context.Context, filter domain.BreakFilter) (domain.BreakStats, error)
	LatestRun(ctx context.Context, tradeDate time.Time) (*domain.ReconciliationRun, error)
	Report(ctx context.Context, tradeDate time.Time) (*domain.BreakReport, error)
}

// Workflow applies versioned break transitions.
type Workflow interface {
	Assign(ctx context.Context, id string, expectedVersion int64, assignee, actor string) (*domain.Break, error)
	StartReview(ctx context.Context, id string, expectedVersion int64, actor string) (*domain.Break, error)
	Resolve(ctx context.Context, id string, expectedVersion int64, action domain.ResolutionAction, notes, actor string) (*domain.Break, error)
	Escalate(ctx context.Context, id string, expectedVersion int64, actor, note string) (*domain.Break, error)
	AutoResolve(ctx context.Context, id string, expectedVersion int64) (*domain.Break, rules.Decision, error)
}

type Server struct {
	R        *gin.Engine
	Runs     Reconciler
	Queries  Queries
	Workflow Workflow
	Cache    *Cache
	logger   *zap.Logger
}

// NewServer wires the router, services, cache and middleware.
func NewServer(runs Reconciler, queries Queries, wf Workflow, cache *Cache, cfg config.HTTP, log *zap.Logger) *Server {
	log = logger.OrNop(log)
	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		log.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	// CORS
	g.Use(func(cn *gin.Context) {
		origin := cn.GetHeader("Origin")
		cn.Writer.Header().Set("Vary", "Origin")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor")
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		cn.Writer.Header().Set("Access-Control-Max-Age", "86400")
		if cfg.CORSOrigin == "*" {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == cfg.CORSOrigin {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{
		R:        g,
		Runs:     runs,
		Queries:  queries,
		Workflow: wf,
		Cache:    cache,
		logger:   log,
	}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := g.Group("/api")
	api.GET("/runs/:date", s.getRun)
	api.POST("/runs/:date", s.startRun)
	api.GET("/reports/:date", s.getReport)

	api.GET("/breaks", s.listBreaks)
	api.GET("/breaks/stats", s.breakStats)
	api.GET("/breaks/:id", s.getBreak)
	api.GET("/breaks/:id/events", s.breakEvents)
	api.POST("/breaks/:id/assign", s.assignBreak)
	api.POST("/breaks/:id/review", s.reviewBreak)
	api.POST("/breaks/:id/resolve", s.resolveBreak)
	api.POST("/breaks/:id/escalate", s.escalateBreak)
	api.POST("/breaks/:id/auto-resolve", s.autoResolveBreak)

	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.R, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
