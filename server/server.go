// Package server exposes the schema migration operations over HTTP: a dry-run diff of
// the live database against the target schema and an endpoint that applies it.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stokaro/resmigrate/config"
	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/migration/executor"
	"github.com/stokaro/resmigrate/migration/generator"
	"github.com/stokaro/resmigrate/migration/migrator"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// Config configures a Server.
type Config struct {
	// AdminKey guards the /admin routes. Empty disables them.
	AdminKey string
	// Plan is passed to generator.BuildPlan for every diff and apply.
	Plan generator.Options
}

// DiffResponse is the dry-run result.
type DiffResponse struct {
	Fingerprint string                       `json:"fingerprint"`
	Actions     []difftypes.MigrationAction  `json:"actions"`
	Counts      map[difftypes.ActionKind]int `json:"counts"`
	Statements  []string                     `json:"statements"`
}

// ApplyResponse is the result of one apply run. Results holds every statement that
// completed, also when the run failed.
type ApplyResponse struct {
	RunID       string                  `json:"runId"`
	Fingerprint string                  `json:"fingerprint"`
	Actions     int                     `json:"actions"`
	Results     []migrator.ActionResult `json:"results"`
	Error       string                  `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the admin endpoints for one database.
type Server struct {
	echo   *echo.Echo
	client dbschema.Client
	cfg    Config
	logger zerolog.Logger

	diffs   singleflight.Group
	applyMu sync.Mutex
}

// New builds the echo router for client.
func New(client dbschema.Client, cfg Config, logger zerolog.Logger) *Server {
	s := &Server{client: client, cfg: cfg, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))

	e.GET("/healthz", s.health)

	admin := e.Group("/admin", AdminKey(cfg.AdminKey))
	admin.GET("/migrations/diff", s.diff)
	admin.POST("/migrations/apply", s.apply)

	s.echo = e
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := s.client.Query(ctx, "SELECT 1"); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// diff computes the plan once for every concurrent caller. The computation is detached
// from the first caller's cancellation since the others wait on it too.
func (s *Server) diff(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	v, err, shared := s.diffs.Do("diff", func() (any, error) {
		plan, err := generator.BuildPlan(ctx, s.client, s.cfg.Plan)
		if err != nil {
			return nil, err
		}
		statements, err := plan.Statements()
		if err != nil {
			return nil, err
		}
		return &DiffResponse{
			Fingerprint: plan.Fingerprint,
			Actions:     nonNil(plan.Actions),
			Counts:      difftypes.CountByKind(plan.Actions),
			Statements:  nonNil(statements),
		}, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(c)).Msg("diff failed")
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}
	resp := v.(*DiffResponse)
	s.logger.Debug().Bool("shared", shared).Int("actions", len(resp.Actions)).Msg("diff computed")
	return c.JSON(http.StatusOK, resp)
}

// apply runs one plan at a time. A second request waits for the first and then diffs
// the already migrated database.
func (s *Server) apply(c echo.Context) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	ctx := c.Request().Context()
	runID := uuid.NewString()
	log := s.logger.With().Str("run_id", runID).Str("request_id", requestID(c)).Logger()

	plan, err := generator.BuildPlan(ctx, s.client, s.cfg.Plan)
	if err != nil {
		log.Error().Err(err).Msg("plan failed")
		return c.JSON(statusFor(err), ApplyResponse{RunID: runID, Results: []migrator.ActionResult{}, Error: err.Error()})
	}

	resp := ApplyResponse{RunID: runID, Fingerprint: plan.Fingerprint, Actions: len(plan.Actions)}
	log.Info().Int("actions", resp.Actions).Msg("applying migration actions")

	exec := executor.New(s.client)
	if s.cfg.Plan.Logger != nil {
		exec = exec.WithLogger(s.cfg.Plan.Logger)
	}
	results, err := exec.Execute(ctx, plan.Actions)
	resp.Results = nonNil(results)
	if err != nil {
		resp.Error = err.Error()
		log.Error().Err(err).Int("executed", len(results)).Msg("apply failed")
		return c.JSON(http.StatusInternalServerError, resp)
	}
	log.Info().Int("statements", len(results)).Msg("apply finished")
	return c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	if errors.Is(err, config.ErrPostDeployRequired) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
