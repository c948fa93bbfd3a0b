package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/controllers"
	"github.com/HSouheill/barrim_mlm/metrics"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

// SetupRoutes configures all API routes by calling individual route registration functions
func SetupRoutes(e *echo.Echo, mlmController *controllers.MLMController, jwtSecret string, logger logrus.FieldLogger, checks map[string]HealthCheck) {
	e.GET("/health", healthHandler(checks))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	RegisterMLMRoutes(e, mlmController, jwtSecret, logger)
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		return c.JSON(status, map[string]interface{}{
			"status":     http.StatusText(status),
			"components": components,
		})
	}
}
