// Package api exposes the appliance's read-only status surface: host-cache,
// route-table, and destination-cert introspection over a small gin HTTP
// server, for operators to check without touching DNS or proxy traffic.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hydraproxy/ingressproxy/internal/hostcache"
	"github.com/hydraproxy/ingressproxy/internal/route"
	"github.com/hydraproxy/ingressproxy/internal/tlsca"
)

// Server is the status API: a thin read-only gin wrapper over the host
// cache, route table, and destination-cert cache the DNS and proxy servers
// already maintain.
type Server struct {
	Logger *slog.Logger
	Cache  *hostcache.Cache
	Routes *route.Table
	Certs  *tlsca.Cache // nil when the proxy subsystem (and so TLS) is disabled

	startTime  time.Time
	httpServer *http.Server
}

// New builds a gin engine wired to h's dependencies.
func New(h *Server) *gin.Engine {
	h.startTime = time.Now()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.healthz)
	r.GET("/stats", h.stats)
	r.GET("/cache", h.cacheDump)
	r.GET("/routes", h.routesDump)
	r.GET("/certs", h.certsDump)

	return r
}

// ListenAndServe serves the status API at addr until ctx is cancelled.
func (h *Server) ListenAndServe(ctx context.Context, addr string) error {
	engine := New(h)
	h.httpServer = &http.Server{Addr: addr, Handler: engine}

	errCh := make(chan error, 1)
	go func() { errCh <- h.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
