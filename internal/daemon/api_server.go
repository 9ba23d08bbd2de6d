package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vidintel/internal/api"
	"vidintel/internal/config"
	"vidintel/internal/logging"
	"vidintel/internal/services"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobs   *api.JobService
	engine *gin.Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		jobs:   d.jobs,
	}
	srv.engine = srv.routes(strings.TrimSpace(cfg.Paths.APIToken))
	return srv
}

func (s *apiServer) routes(token string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestContext(), authMiddleware(token))

	v := engine.Group("/api")
	v.GET("/status", s.handleStatus)

	jobs := v.Group("/jobs")
	jobs.GET("", s.handleListJobs)
	jobs.POST("", s.handleCreateJob)
	jobs.GET("/:id", s.handleGetJob)
	jobs.GET("/:id/logs", s.handleJobLogs)
	jobs.POST("/:id/cancel", s.handleCancelJob)
	jobs.POST("/:id/retry", s.handleRetryJob)

	videos := v.Group("/videos")
	videos.GET("/:id/entities", s.handleEntities)
	videos.GET("/:id/chapters", s.handleChapters)
	return engine
}

// requestContext stamps a request id on the context and the response, and
// logs each request at debug level.
func (s *apiServer) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), reqID))

		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			logging.String(logging.FieldCorrelationID, reqID),
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	// A shut down http.Server cannot serve again, so each start gets its own.
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.listener = listener
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(c *gin.Context) {
	status := s.daemon.Status(c.Request.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	c.JSON(http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: deps,
	})
}

func (s *apiServer) handleListJobs(c *gin.Context) {
	var statuses []string
	for _, value := range c.QueryArray("status") {
		statuses = append(statuses, strings.Split(value, ",")...)
	}
	jobs, err := s.jobs.List(c.Request.Context(), statuses...)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleCreateJob(c *gin.Context) {
	var req api.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "decode request", "invalid JSON body", err))
		return
	}
	job, err := s.jobs.Create(c.Request.Context(), req)
	if err != nil && job.ID == "" {
		s.writeError(c, err)
		return
	}
	if err != nil {
		logging.WarnWithContext(c.Request.Context(), s.logger, "job created but not announced", "job_announce_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job waits for the next daemon start"),
		)
	}
	c.JSON(http.StatusCreated, api.JobResponse{Job: job})
}

func (s *apiServer) handleGetJob(c *gin.Context) {
	job, err := s.jobs.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleJobLogs(c *gin.Context) {
	after, err := queryInt64(c, "after")
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp, err := s.jobs.Logs(c.Request.Context(), c.Param("id"), after, int(limit))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleCancelJob(c *gin.Context) {
	resp, err := s.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleRetryJob(c *gin.Context) {
	resp, err := s.jobs.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleEntities(c *gin.Context) {
	resp, err := s.jobs.Entities(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleChapters(c *gin.Context) {
	resp, err := s.jobs.Chapters(c.Request.Context(), c.Param("id"), c.Query("source"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "parse query", fmt.Sprintf("invalid %s %q", key, raw), err)
	}
	return value, nil
}

func (s *apiServer) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	message := services.Details(err).Message
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
