package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"ourchants/internal/metrics"
)

// MetricsMiddleware creates middleware that records request metrics. It
// runs after the handler so the matched route template is known.
func MetricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// let the app error handler write the status we are about to record
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := c.Route().Path
		method := c.Method()
		status := strconv.Itoa(c.Response().StatusCode())

		m.RequestCount.WithLabelValues(method, route, status).Inc()
		m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())

		if c.Response().StatusCode() >= fiber.StatusBadRequest {
			m.ErrorCount.WithLabelValues(method, route, status).Inc()
		}

		return nil
	}
}
