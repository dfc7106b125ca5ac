// Package http serves the operator surface of a long-running sandbox: a
// status API describing the cluster and a reverse proxy in front of the
// application's mapped port.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/ports"
	"github.com/melih/lighthouse-verify/internal/core/sandbox"
)

// StatusHandler exposes the sandbox cluster state over JSON.
type StatusHandler struct {
	sb      *sandbox.Sandbox
	rt      ports.ContainerRuntime
	log     *logrus.Logger
	started time.Time
}

// NewStatusHandler builds a handler for an already started sandbox.
func NewStatusHandler(sb *sandbox.Sandbox, rt ports.ContainerRuntime, log *logrus.Logger) *StatusHandler {
	return &StatusHandler{sb: sb, rt: rt, log: log, started: time.Now()}
}

type containerStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// GetStatus reports the cluster members and where the application is
// reachable.
func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	containers := fiber.Map{}
	if app := h.sb.App(); app != nil {
		containers["app"] = containerStatus{
			ID:      app.ID(),
			Name:    app.Name(),
			Running: app.Running(c.Context()),
		}
	}
	if support := h.sb.Support(); support != nil {
		containers["support"] = containerStatus{
			ID:      support.ID(),
			Name:    support.Name(),
			Running: support.Running(c.Context()),
		}
	}

	return c.JSON(fiber.Map{
		"host":       h.sb.Host(),
		"port":       h.sb.AppPort(),
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"containers": containers,
		"config": fiber.Map{
			"health_checks_enabled": h.sb.Config().HealthChecksEnabled,
			"java":                  h.sb.Config().IsJava,
		},
	})
}

// GetLogs streams the application container's current log buffer as plain
// text.
func (h *StatusHandler) GetLogs(c *fiber.Ctx) error {
	app := h.sb.App()
	if app == nil || app.ID() == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "application container is not running",
		})
	}

	logs, err := h.rt.Logs(c.Context(), app.ID(), false)
	if err != nil {
		h.log.WithError(err).Warn("could not read application logs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

// Router assembles the fiber application for run mode: the status API
// under /api/v1 and the reverse proxy for everything else.
func Router(sb *sandbox.Sandbox, rt ports.ContainerRuntime, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	status := NewStatusHandler(sb, rt, log)
	v1 := app.Group("/api").Group("/v1")
	v1.Get("/status", status.GetStatus)
	v1.Get("/logs", status.GetLogs)

	proxy := NewProxyHandler(sb, log)
	app.Use(proxy.ProxyRequest)

	return app
}
