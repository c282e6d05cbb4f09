// Package http exposes a running vasp.VASP over the wire: the off-chain
// protocol endpoint counterparties POST to, a liveness check, Prometheus
// metrics, and an authenticated admin surface for inspecting channels and
// payment objects. Grounded on asyncnet.py's aiohttp application, which
// wires the same /{other}/{self}/process route onto a single handler
// plus a handful of operational endpoints.
package http

import (
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vasp-offchain.backend/internal/interfaces/http/middleware"
	"vasp-offchain.backend/internal/vasp"
	"vasp-offchain.backend/pkg/jwt"
	"vasp-offchain.backend/pkg/metrics"
	"vasp-offchain.backend/pkg/redis"
)

// Router builds the gin.Engine exposing v's protocol endpoint, health and
// metrics, and an admin introspection group gated behind jwtService and
// sessionStore the same way the rest of this backend authenticates
// operators. peerKeys authenticates incoming protocol requests from peers
// it lists via detached JWS; a peer absent from it is accepted
// unauthenticated.
func Router(v *vasp.VASP, jwtService *jwt.JWTService, sessionStore *redis.SessionStore, reg *metrics.Registry, peerKeys map[string]ed25519.PublicKey) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "vasp": v.MyAddress().String()})
	})

	if reg != nil {
		handler := promhttp.HandlerFor(reg.Registerer(), promhttp.HandlerOpts{})
		r.GET("/metrics", gin.WrapH(handler))
	}

	ph := &protocolHandler{vasp: v, metrics: reg, peerKeys: peerKeys}
	r.POST("/:myself/:other/process", ph.handle)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtService, sessionStore))
	admin.Use(middleware.RequireAdminOrSubAdmin())
	{
		ah := &adminHandlers{vasp: v}
		admin.GET("/channels", ah.listChannels)
		admin.GET("/channels/:other/payments", ah.listPaymentVersions)
		admin.GET("/channels/:other/payments/:version", ah.getPaymentRecord)
	}

	return r
}

// NewHTTPPeerClient is a convenience constructor matching the rest of
// this package's naming, delegating to peer_client.go.
func NewHTTPPeerClient(baseURLs map[string]string, timeout time.Duration) *HTTPPeerClient {
	return newHTTPPeerClient(baseURLs, timeout)
}
