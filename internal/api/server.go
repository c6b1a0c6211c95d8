package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"reeler/internal/config"
	"reeler/internal/coordinator"
	"reeler/internal/logging"
	"reeler/internal/records"
	"reeler/internal/services"
)

// Coordinator is the job queue the server exposes.
type Coordinator interface {
	Entries(ctx context.Context) (map[int64]records.Record, error)
	Entry(ctx context.Context, id int64) (*records.Record, error)
	CreateEntry(ctx context.Context, rec records.Record) (*records.Record, error)
	MergeEntry(ctx context.Context, id int64, patch map[string]any) (*records.Record, error)
	ClaimNextDownload(ctx context.Context, host string) (*records.Record, error)
	UpdateDownload(ctx context.Context, id int64, update coordinator.DownloadUpdate) (*records.Record, error)
	ClaimNextConversion(ctx context.Context, host string) (*records.Record, error)
	ReportConversion(ctx context.Context, id int64, host string, status *records.ConverterStatus) (*records.Record, error)
}

// Server is the coordinator HTTP service.
type Server struct {
	bind     string
	certFile string
	keyFile  string
	coord    Coordinator
	logger   *slog.Logger

	echo     *echo.Echo
	server   *http.Server
	listener net.Listener
}

// NewServer builds the service for coord using the [service] settings of cfg.
func NewServer(cfg *config.Config, coord Coordinator, logger *slog.Logger) *Server {
	s := &Server{
		bind:   cfg.Service.Bind,
		coord:  coord,
		logger: logging.NewComponentLogger(logger, "api"),
	}
	if cfg.TLSEnabled() {
		s.certFile = cfg.Service.Certificate
		s.keyFile = cfg.Service.PrivateKey
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: headerRequestID,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(services.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := logging.WithContext(c.Request().Context(), s.logger)
			attrs := []logging.Attr{
				logging.String("method", v.Method),
				logging.String("uri", v.URI),
				logging.Int("status", v.Status),
				logging.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, logging.Error(v.Error))
				logger.Warn("request failed", logging.Args(attrs...)...)
				return nil
			}
			logger.Debug("request served", logging.Args(attrs...)...)
			return nil
		},
	}))
	e.Use(middleware.CORS())

	e.GET("/health", s.handleHealth)
	e.GET("/entries", s.handleEntries)
	e.GET("/entries/:id", s.handleEntry)
	e.POST("/entries", s.handleCreateEntry)
	e.PUT("/entries/:id", s.handleMergeEntry)
	e.GET("/next2download", s.handleNextDownload)
	e.PUT("/downloading/:id", s.handleDownloading)
	e.GET("/next2convert", s.handleNextConversion)
	e.PUT("/converting/:id", s.handleConverting)

	s.echo = e
	s.server = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler without a listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve listens (if needed) and serves until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	scheme := "http"
	if s.certFile != "" {
		scheme = "https"
	}
	s.logger.Info("coordinator service listening",
		logging.String("address", s.Addr()),
		logging.String("scheme", scheme),
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = s.server.ServeTLS(s.listener, s.certFile, s.keyFile)
		} else {
			err = s.server.Serve(s.listener)
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown incomplete", logging.Error(err))
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message = fmt.Sprint(httpErr.Message)
	}
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request().Context(), s.logger).Error("request error",
			logging.String("uri", c.Request().RequestURI),
			logging.Error(err),
		)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if writeErr := c.JSON(status, ErrorResponse{Error: message}); writeErr != nil {
		s.logger.Error("failed to encode error response", logging.Error(writeErr))
	}
}
