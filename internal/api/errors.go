package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rynowak/tye/internal/core"
	"github.com/rynowak/tye/internal/domain"
	"github.com/rynowak/tye/internal/registry"
)

// errorDetail is the body of an ARM error response:
//
//	{"error": {"code": "NotFound", "message": "..."}}
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func newAPIError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, errorDetail{Code: code, Message: message})
}

func notFound(id domain.ResourceID) *echo.HTTPError {
	return newAPIError(http.StatusNotFound, "NotFound", fmt.Sprintf("resource %s was not found", id))
}

// toHTTPError maps domain and runtime errors onto API errors. Anything not
// recognized is an internal error whose cause is kept for logging only.
func toHTTPError(err error) *echo.HTTPError {
	var (
		validation *domain.ValidationError
		invalidID  *domain.InvalidResourceIDError
		httpErr    *echo.HTTPError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &validation):
		return newAPIError(http.StatusBadRequest, "BadRequest", validation.Error())
	case errors.As(err, &invalidID):
		return newAPIError(http.StatusBadRequest, "InvalidResourceId", invalidID.Error())
	case errors.Is(err, registry.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, core.ErrCancelled):
		return newAPIError(http.StatusServiceUnavailable, "ServiceUnavailable", err.Error())
	case errors.Is(err, core.ErrEngineStartFailed):
		return newAPIError(http.StatusBadGateway, "EngineStartFailed", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "InternalServerError", "an internal error occurred").SetInternal(err)
}

// errorHandler writes every error in the ARM envelope, including the ones
// echo raises itself for unknown routes and bad methods.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := toHTTPError(err)
	detail, ok := he.Message.(errorDetail)
	if !ok {
		detail = errorDetail{Code: strings.ReplaceAll(http.StatusText(he.Code), " ", ""), Message: fmt.Sprint(he.Message)}
	}

	log := s.logger.Warn()
	if he.Code >= http.StatusInternalServerError {
		log = s.logger.Error()
	}
	log.Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Int("status", he.Code).
		Msg("Request failed")

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(he.Code)
	} else {
		writeErr = c.JSON(he.Code, errorResponse{Error: detail})
	}
	if writeErr != nil {
		s.logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
