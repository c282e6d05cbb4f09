package http

import (
	"crypto/ed25519"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/vasp"
	"vasp-offchain.backend/pkg/logger"
	"vasp-offchain.backend/pkg/metrics"
)

// protocolHandler serves the reference VASP HTTP API's single route:
// POST /{recvvasp}/{sendvasp}/process, where recvvasp is this node's own
// address and sendvasp is the counterparty presenting the request. The
// body is the raw wire-encoded command envelope and the response is the
// raw wire-encoded reply, matching asyncnet.py's handler, which never
// parses the frame itself beyond handing it to parse_handle_request.
//
// When peerKeys holds a compliance key for the presenting counterparty,
// the request must also carry a valid detached-JWS X-VASP-Signature
// header over the raw body; a peer absent from peerKeys is accepted
// unauthenticated, since request authentication is external to the core.
type protocolHandler struct {
	vasp     *vasp.VASP
	metrics  *metrics.Registry
	peerKeys map[string]ed25519.PublicKey
}

func (h *protocolHandler) handle(c *gin.Context) {
	myself := c.Param("myself")
	other := c.Param("other")

	if myself != h.vasp.MyAddress().String() {
		c.String(http.StatusNotFound, "unknown recipient VASP %q", myself)
		return
	}

	otherAddr, err := address.Parse(other)
	if err != nil {
		c.String(http.StatusBadRequest, "malformed counterparty address: %v", err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	if pub, ok := h.peerKeys[other]; ok {
		token := c.GetHeader(detachedHeader)
		if token == "" {
			c.String(http.StatusUnauthorized, "missing %s header", detachedHeader)
			return
		}
		if err := verifyDetached(pub, body, token); err != nil {
			logger.Error(c.Request.Context(), "detached JWS verification failed", zap.Error(err))
			c.String(http.StatusUnauthorized, "invalid request signature")
			return
		}
	}

	resp, err := h.vasp.HandleIncomingRequest(otherAddr, body)
	if err != nil {
		logger.Error(c.Request.Context(), "process request failed", zap.Error(err))
		if h.metrics != nil {
			h.metrics.CommandFailed("receiver")
		}
		c.String(http.StatusBadRequest, "%v", err)
		return
	}

	if h.metrics != nil {
		h.metrics.CommandProcessed("receiver")
	}
	c.Data(http.StatusOK, "application/json", resp)
}
