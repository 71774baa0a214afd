package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/usecase"
)

const defaultActor = "api"

type runRequest struct {
	ForceRerun bool `json:"force_rerun"`
}

type assignRequest struct {
	Version  int64  `json:"version" binding:"required,gte=1"`
	Assignee string `json:"assignee" binding:"required"`
}

type reviewRequest struct {
	Version int64 `json:"version" binding:"required,gte=1"`
}

type resolveRequest struct {
	Version int64  `json:"version" binding:"required,gte=1"`
	Action  string `json:"action" binding:"required"`
	Notes   string `json:"notes"`
}

type escalateRequest struct {
	Version int64  `json:"version" binding:"required,gte=1"`
	Note    string `json:"note"`
}

type autoResolveResponse struct {
	Break *domain.Break `json:"break"`
	Rule  string        `json:"rule,omitempty"`
}

type breaksResponse struct {
	Rows []*domain.Break `json:"rows"`
}

type eventsResponse struct {
	Rows []domain.BreakEvent `json:"rows"`
}

// --- Helpers ---

func actorOf(c *gin.Context) string {
	if a := strings.TrimSpace(c.GetHeader("X-Actor")); a != "" {
		return a
	}
	return defaultActor
}

func parseDate(c *gin.Context) (time.Time, bool) {
	d, err := time.Parse(time.DateOnly, c.Param("date"))
	return d, err == nil
}

func parseLimit(v string, def, min, max int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func (s *Server) parseFilter(c *gin.Context) (domain.BreakFilter, bool) {
	f := domain.BreakFilter{
		Assignee: strings.TrimSpace(c.Query("assignee")),
		Limit:    parseLimit(c.Query("limit"), 100, 1, 1000),
		Offset:   parseLimit(c.Query("offset"), 0, 0, 1<<30),
	}
	if v := c.Query("status"); v != "" {
		st, ok := domain.ParseStatus(v)
		if !ok {
			s.badRequest(c, "invalid status "+v)
			return f, false
		}
		f.Status = st
	}
	if v := c.Query("severity"); v != "" {
		sev, ok := domain.ParseSeverity(v)
		if !ok {
			s.badRequest(c, "invalid severity "+v)
			return f, false
		}
		f.Severity = sev
	}
	if v := c.Query("category"); v != "" {
		cat, ok := domain.ParseCategory(v)
		if !ok {
			s.badRequest(c, "invalid category "+v)
			return f, false
		}
		f.Category = cat
	}
	if v := c.Query("trade_date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			s.badRequest(c, "invalid trade_date (use YYYY-MM-DD)")
			return f, false
		}
		f.TradeDate = d
	}
	return f, true
}

// invalidate drops cached read models for the trade date a break belongs to.
func (s *Server) invalidate(b *domain.Break) {
	if b == nil {
		return
	}
	s.Cache.InvalidateReports(b.TradeDate.Format(time.DateOnly))
}

// --- Runs ---

func (s *Server) getRun(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		s.badRequest(c, "invalid date (use YYYY-MM-DD)")
		return
	}
	key := runKey(c.Param("date"))
	if run, ok := s.Cache.Get(key); ok {
		c.JSON(http.StatusOK, run)
		return
	}

	run, err := s.Queries.LatestRun(c.Request.Context(), date)
	if err != nil {
		s.writeError(c, "LatestRun", err)
		return
	}
	s.Cache.Set(key, run)
	c.JSON(http.StatusOK, run)
}

func (s *Server) startRun(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		s.badRequest(c, "invalid date (use YYYY-MM-DD)")
		return
	}
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err.Error())
			return
		}
	}

	run, err := s.Runs.Reconcile(c.Request.Context(), date, usecase.RunOptions{ForceRerun: req.ForceRerun})
	s.Cache.Del(runKey(c.Param("date")))
	s.Cache.InvalidateReports(c.Param("date"))
	if err != nil {
		s.writeError(c, "Reconcile", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getReport(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		s.badRequest(c, "invalid date (use YYYY-MM-DD)")
		return
	}
	key := reportKey(c.Param("date"))
	if report, ok := s.Cache.Get(key); ok {
		c.JSON(http.StatusOK, report)
		return
	}

	report, err := s.Queries.Report(c.Request.Context(), date)
	if err != nil {
		s.writeError(c, "Report", err)
		return
	}
	s.Cache.Set(key, report)
	c.JSON(http.StatusOK, report)
}

// --- Breaks ---

func (s *Server) listBreaks(c *gin.Context) {
	f, ok := s.parseFilter(c)
	if !ok {
		return
	}
	rows, err := s.Queries.ListBreaks(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, "ListBreaks", err)
		return
	}
	if rows == nil {
		rows = []*domain.Break{}
	}
	c.JSON(http.StatusOK, breaksResponse{Rows: rows})
}

func (s *Server) breakStats(c *gin.Context) {
	f, ok := s.parseFilter(c)
	if !ok {
		return
	}
	stats, err := s.Queries.BreakStats(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, "BreakStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getBreak(c *gin.Context) {
	b, err := s.Queries.GetBreak(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "GetBreak", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) breakEvents(c *gin.Context) {
	events, err := s.Queries.BreakEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "BreakEvents", err)
		return
	}
	if events == nil {
		events = []domain.BreakEvent{}
	}
	c.JSON(http.StatusOK, eventsResponse{Rows: events})
}

func (s *Server) assignBreak(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	b, err := s.Workflow.Assign(c.Request.Context(), c.Param("id"), req.Version, req.Assignee, actorOf(c))
	s.transitioned(c, "Assign", b, err)
}

func (s *Server) reviewBreak(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	b, err := s.Workflow.StartReview(c.Request.Context(), c.Param("id"), req.Version, actorOf(c))
	s.transitioned(c, "StartReview", b, err)
}

func (s *Server) resolveBreak(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	action, ok := domain.ParseAction(req.Action)
	if !ok {
		s.badRequest(c, "invalid action "+req.Action)
		return
	}
	b, err := s.Workflow.Resolve(c.Request.Context(), c.Param("id"), req.Version, action, req.Notes, actorOf(c))
	s.transitioned(c, "Resolve", b, err)
}

func (s *Server) escalateBreak(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	b, err := s.Workflow.Escalate(c.Request.Context(), c.Param("id"), req.Version, actorOf(c), req.Note)
	s.transitioned(c, "Escalate", b, err)
}

func (s *Server) autoResolveBreak(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	b, d, err := s.Workflow.AutoResolve(c.Request.Context(), c.Param("id"), req.Version)
	if err != nil {
		s.writeError(c, "AutoResolve", err)
		return
	}
	s.invalidate(b)
	resp := autoResolveResponse{Break: b}
	if d.Rule != nil {
		resp.Rule = d.Rule.Name
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) transitioned(c *gin.Context, where string, b *domain.Break, err error) {
	if err != nil {
		s.writeError(c, where, err)
		return
	}
	s.invalidate(b)
	c.JSON(http.StatusOK, b)
}
