package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check is a named readiness probe, e.g. a database ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Health answers "ok" while every check passes and 503 with the failing
// names otherwise.  Load balancers poll it.
func Health(checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		var failed []string
		for _, ch := range checks {
			if err := ch.Ping(ctx); err != nil {
				c.Logger().Warnf("health: %s: %v", ch.Name, err)
				failed = append(failed, ch.Name)
			}
		}
		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "failed": failed})
		}
		return c.String(http.StatusOK, "ok")
	}
}
