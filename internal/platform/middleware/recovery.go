package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/planengine/internal/platform/fhir"
)

// Recovery turns a handler panic into a 500 OperationOutcome and logs the
// stack against the request id.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					logger.Error().
						Str("request_id", requestID(c)).
						Str("path", c.Request().URL.Path).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(stack[:n])).
						Msg("panic recovered")

					if c.Response().Committed {
						err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
						return
					}
					err = c.JSON(http.StatusInternalServerError, fhir.NewOperationOutcome(
						fhir.IssueSeverityFatal, fhir.IssueTypeException, "internal server error"))
				}
			}()
			return next(c)
		}
	}
}
