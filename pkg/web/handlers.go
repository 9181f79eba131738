package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":     true,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleStatus returns the current runtime counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.provider == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "status not available",
		})
	}
	return c.JSON(s.provider.Status())
}

// handleConfig returns the effective configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.provider == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "config not available",
		})
	}
	return c.JSON(s.provider.Settings())
}
