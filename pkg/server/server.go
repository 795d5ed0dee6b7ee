package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"catbot/pkg/automation"
	"catbot/pkg/logger"
	"catbot/pkg/models"
)

const (
	serviceName = "catbot"
	logLines    = 100
)

// endpoints is returned by the index and by unknown routes
var endpoints = fiber.Map{
	"/":         "Health check",
	"/run-task": "Execute one automation cycle (GET or POST)",
	"/status":   "Get service status",
	"/logs":     "Get recent logs",
}

// Runner runs cycles and reports the bot's state
type Runner interface {
	Run(ctx context.Context) (*automation.Report, error)
	Status(ctx context.Context) automation.Status
}

// Options configures the dashboard
type Options struct {
	LogFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP dashboard and cycle trigger
type Server struct {
	app     *fiber.App
	runner  Runner
	logFile string
	logger  logger.Logger
}

// New creates the server and registers its routes
func New(runner Runner, opts Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		// a cycle may wait on video processing for several minutes
		opts.WriteTimeout = 15 * time.Minute
	}

	s := &Server{
		runner:  runner,
		logFile: opts.LogFile,
		logger:  log.WithField("component", "server"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.requestLogger)
	s.app.Get("/", s.handleIndex)
	s.app.Get("/run-task", s.handleRunTask)
	s.app.Post("/run-task", s.handleRunTask)
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/logs", s.handleLogs)
	s.app.Use(s.handleNotFound)

	return s
}

// App exposes the underlying fiber app
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.logger.WithField("addr", addr).Info("dashboard listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	logger.LogRequest(s.logger, c.Method(), c.Path(), status, time.Since(start))
	return err
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "running",
		"service":   serviceName,
		"message":   "cat content bot is running",
		"timestamp": time.Now().Format(time.RFC3339),
		"endpoints": endpoints,
	})
}

type runTaskResponse struct {
	Status          models.RunStatus `json:"status"`
	Message         string           `json:"message"`
	StartTime       string           `json:"start_time"`
	EndTime         string           `json:"end_time"`
	DurationSeconds float64          `json:"duration_seconds"`
	ExecutionMode   string           `json:"execution_mode"`
	Posted          int              `json:"posted"`
	MediaID         string           `json:"media_id,omitempty"`
	PublishedID     string           `json:"published_id,omitempty"`
	Error           string           `json:"error,omitempty"`
}

func (s *Server) handleRunTask(c *fiber.Ctx) error {
	s.logger.WithField("method", c.Method()).Info("cycle requested")

	rep, err := s.runner.Run(c.UserContext())
	if errors.Is(err, automation.ErrBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":    "error",
			"message":   "a cycle is already running",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
	if rep == nil {
		return fmt.Errorf("cycle produced no report: %w", err)
	}

	resp := runTaskResponse{
		Status:          rep.Status,
		Message:         rep.Message,
		StartTime:       rep.StartedAt.Format(time.RFC3339),
		EndTime:         rep.FinishedAt.Format(time.RFC3339),
		DurationSeconds: rep.DurationSeconds(),
		ExecutionMode:   rep.Mode,
		Posted:          rep.Posted,
		MediaID:         rep.MediaID,
		PublishedID:     rep.PublishedID,
		Error:           rep.Error,
	}

	status := fiber.StatusOK
	if err != nil || rep.Status == models.RunError {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(resp)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.runner.Status(c.UserContext())
	return c.JSON(fiber.Map{
		"status":                "healthy",
		"service":               serviceName,
		"testing_mode":          st.TestingMode,
		"execution_mode":        st.Mode,
		"username":              st.Username,
		"gemini_api_configured": st.CaptionConfigured,
		"running":               st.Running,
		"stats":                 st.Stats,
		"last_run":              st.LastRun,
		"recent_posts":          st.RecentPosts,
		"directories":           st.Directories,
		"timestamp":             time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	lines, err := logger.TailFile(s.logFile, logLines)
	if err != nil {
		s.logger.WithError(err).Error("failed to read log file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":    "error",
			"message":   "failed to retrieve logs: " + err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
	if lines == nil {
		lines = []string{}
	}
	return c.JSON(fiber.Map{
		"status":    "success",
		"logs":      lines,
		"count":     len(lines),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":              "error",
		"message":             "Endpoint not found",
		"available_endpoints": endpoints,
	})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusNotFound || code == fiber.StatusMethodNotAllowed {
		return s.handleNotFound(c)
	}
	s.logger.WithError(err).ErrorWithFields("request failed", map[string]interface{}{
		"path": c.Path(),
	})
	return c.Status(code).JSON(fiber.Map{
		"status":    "error",
		"message":   err.Error(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
