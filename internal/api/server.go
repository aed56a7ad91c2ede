package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/core"
	"github.com/rynowak/tye/internal/domain"
	"github.com/rynowak/tye/internal/registry"
	"github.com/rynowak/tye/internal/view"
)

const containersPath = "/subscriptions/:subscriptionId/resourceGroups/:resourceGroup/providers/" + domain.ContainerNamespace + "/containers"

type runtime interface {
	Put(ctx context.Context, spec *domain.Container) (domain.ContainerStatus, error)
	Delete(ctx context.Context, identity domain.Identity) error
	State() core.State
}

type viewSource interface {
	Current() *view.Model
}

// Server is the HTTP front end of the daemon.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
}

func NewServer(rt runtime, repo registry.Repository, views viewSource, logger zerolog.Logger) *Server {
	s := &Server{
		echo:   echo.New(),
		logger: logger.With().Str("component", "api").Logger(),
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(s.requestLogger)

	e.GET("/healthz", HealthHandler(rt))
	e.GET("/view", ViewHandler(views))

	g := e.Group(containersPath)
	g.GET("", ListContainersHandler(repo))
	g.GET("/:name", GetContainerHandler(repo))
	g.PUT("/:name", PutContainerHandler(rt, repo))
	g.DELETE("/:name", DeleteContainerHandler(rt, repo))

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on address until Shutdown is called.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("API listening")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		begin := time.Now()
		err := next(c)

		req := c.Request()
		status := c.Response().Status
		if err != nil {
			status = toHTTPError(err).Code
		}
		s.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(begin)).
			Msg("Request handled")
		return err
	}
}
