package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler writes every unhandled error as {"detail": "..."} so clients
// see one error shape regardless of where the error came from.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := http.StatusText(code)

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			detail = http.StatusText(code)
			if msg, ok := httpErr.Message.(string); ok {
				detail = msg
			}
			if httpErr.Internal != nil {
				logger.Error().Err(httpErr.Internal).Int("status", code).Msg("request failed")
			}
		} else {
			logger.Error().Err(err).Msg("unhandled error")
		}

		// Internal failures are logged above; the client gets the status text.
		if code >= http.StatusInternalServerError {
			detail = http.StatusText(code)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, map[string]string{"detail": detail})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
