package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/middleware"
	"llm-gateway-go/internal/model"
)

// internalError logs err and replies with the generic 500 body.
func internalError(c echo.Context, logger *slog.Logger, err error) error {
	id := middleware.CorrelationID(c)
	logger.Error("request failed",
		"err", err,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"correlation_id", id,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
	return c.String(http.StatusInternalServerError, "Internal server error\nRequestId:"+id)
}

// NotFound replies for paths outside every mounted prefix.
func NotFound(c echo.Context) error {
	return c.String(http.StatusNotFound, "no resource can be found at "+model.EscapePath(c.Request().URL.RequestURI()))
}

// ErrorHandler replaces echo's JSON error replies with plain text. HTTP errors
// raised by middleware keep their status; anything else, including recovered
// panics, becomes the generic 500.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			logger.Warn("error after response committed", "err", err, "path", c.Request().URL.Path)
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code != http.StatusInternalServerError {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok && s != "" {
				msg = s
			}
			var werr error
			if c.Request().Method == http.MethodHead {
				werr = c.NoContent(he.Code)
			} else {
				werr = c.String(he.Code, msg)
			}
			if werr != nil {
				logger.Debug("write error reply", "err", werr)
			}
			return
		}

		if werr := internalError(c, logger, err); werr != nil {
			logger.Debug("write error reply", "err", werr)
		}
	}
}
