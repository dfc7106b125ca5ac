package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/sandbox"
)

// ProxyHandler forwards requests to the application's host-mapped port,
// so the operator interacts with the sandboxed application through one
// address.
type ProxyHandler struct {
	sb  *sandbox.Sandbox
	log *logrus.Logger
}

// NewProxyHandler creates a proxy in front of the sandboxed application.
func NewProxyHandler(sb *sandbox.Sandbox, log *logrus.Logger) *ProxyHandler {
	return &ProxyHandler{sb: sb, log: log}
}

// ProxyRequest forwards the request to the application container.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	app := h.sb.App()
	if app == nil || !app.Running(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).SendString("application is not running")
	}

	target := fmt.Sprintf("http://%s:%d", h.sb.Host(), h.sb.AppPort())
	remote, err := url.Parse(target)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("invalid proxy target")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite the Host header so the application sees the address it is
	// actually bound to.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Host = remote.Host
		req.URL.Scheme = remote.Scheme
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.log.WithError(err).Warn("proxying to the application failed")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "proxy error: target=%s error=%v", target, err)
	}

	return adaptor.HTTPHandler(proxy)(c)
}
