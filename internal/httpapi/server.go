// Package httpapi exposes the classification pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
	"github.com/fyrsmithlabs/docrouter/internal/pipeline"
	"github.com/fyrsmithlabs/docrouter/internal/routing"
)

// Server provides the HTTP endpoints for docrouter.
type Server struct {
	echo    *echo.Echo
	service *pipeline.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server over the pipeline service.
func NewServer(service *pipeline.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/classify", s.handleClassify)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/conflicts", s.handleConflicts)
	v1.POST("/conflicts/:id/resolve", s.handleResolveConflict)
	v1.GET("/reviews", s.handleReviews)
	v1.POST("/reviews/:id/resolve", s.handleResolveReview)
	v1.GET("/knowledge/stats", s.handleStats)
}

// ClassifyRequest is the request body for POST /api/v1/classify.
type ClassifyRequest struct {
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Filename string `json:"filename"`
	Content  []byte `json:"content,omitempty"` // base64 in JSON
}

// FeedbackResponse is the response body for POST /api/v1/feedback.
type FeedbackResponse struct {
	Outcome   string `json:"outcome"`
	FactID    string `json:"fact_id"`
	Rationale string `json:"rationale"`
}

// ResolveConflictRequest is the request body for conflict resolution.
type ResolveConflictRequest struct {
	Resolution string `json:"resolution"` // updated or rejected
}

// ResolveReviewRequest is the request body for review resolution.
type ResolveReviewRequest struct {
	Discard  bool   `json:"discard"`
	Category string `json:"category,omitempty"`
	AssetID  string `json:"asset_id,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid classify request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename field is required")
	}

	email := &pipeline.Email{
		Sender:  req.Sender,
		Subject: req.Subject,
		Body:    req.Body,
	}
	att := pipeline.Attachment{Filename: req.Filename, Bytes: req.Content}

	resp, err := s.service.ClassifyAttachment(c.Request().Context(), email, att)
	if err != nil {
		if errors.Is(err, knowledge.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("classification failed",
			zap.String("filename", req.Filename), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "classification failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var fb pipeline.Feedback
	if err := c.Bind(&fb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if fb.Filename == "" || fb.Category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename and category fields are required")
	}

	result, err := s.service.RecordFeedback(c.Request().Context(), fb)
	if err != nil {
		if errors.Is(err, knowledge.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("feedback failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "feedback failed")
	}
	return c.JSON(http.StatusOK, FeedbackResponse{
		Outcome:   string(result.Outcome),
		FactID:    result.ID,
		Rationale: result.Rationale,
	})
}

func (s *Server) handleConflicts(c echo.Context) error {
	conflicts, err := s.service.PendingConflicts(c.Request().Context())
	if err != nil {
		s.logger.Error("listing conflicts failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing conflicts failed")
	}
	if conflicts == nil {
		conflicts = []*knowledge.ConflictRecord{}
	}
	return c.JSON(http.StatusOK, conflicts)
}

func (s *Server) handleResolveConflict(c echo.Context) error {
	var req ResolveConflictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resolution := knowledge.ConflictResolution(req.Resolution)
	if resolution != knowledge.ResolutionUpdated && resolution != knowledge.ResolutionRejected {
		return echo.NewHTTPError(http.StatusBadRequest, "resolution must be updated or rejected")
	}

	err := s.service.ResolveConflict(c.Request().Context(), c.Param("id"), resolution)
	if errors.Is(err, knowledge.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no pending conflict with that id")
	}
	if err != nil {
		s.logger.Error("conflict resolution failed",
			zap.String("id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "conflict resolution failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReviews(c echo.Context) error {
	items, err := s.service.PendingReviews(c.Request().Context(), c.QueryParam("asset_id"))
	if err != nil {
		s.logger.Error("listing reviews failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing reviews failed")
	}
	if items == nil {
		items = []*routing.ReviewItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleResolveReview(c echo.Context) error {
	var req ResolveReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	item, err := s.service.ResolveReview(c.Request().Context(), c.Param("id"), routing.Resolution{
		Discard:  req.Discard,
		Category: req.Category,
		AssetID:  req.AssetID,
	})
	if errors.Is(err, routing.ErrItemNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no pending review item with that id")
	}
	if err != nil {
		s.logger.Error("review resolution failed",
			zap.String("id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "review resolution failed")
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.service.KnowledgeStats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
