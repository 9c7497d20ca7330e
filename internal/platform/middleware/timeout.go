package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
)

// RequestTimeout bounds each request with a context deadline. When the
// handler has not finished in time the caller gets a 504 OperationOutcome.
// A non-positive timeout disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeout(c, timeout)
				}
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeout(c echo.Context, timeout time.Duration) error {
	// A partial write cannot be replaced.
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome(
		fhir.IssueSeverityError, fhir.IssueTypeTimeout,
		"request exceeded the "+timeout.String()+" processing limit"))
}
