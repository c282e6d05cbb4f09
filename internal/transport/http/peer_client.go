package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"time"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/vasp"
)

// HTTPPeerClient implements vasp.PeerClient by POSTing to a counterparty's
// own /{recvvasp}/{sendvasp}/process endpoint, the outbound half of the
// same wire contract protocolHandler serves. baseURLs maps a
// counterparty's Bech32 address to the base URL of their off-chain
// protocol listener, taken from config.VASPConfig.PeerBaseURLs.
type HTTPPeerClient struct {
	self       address.Address
	baseURLs   map[string]string
	client     *http.Client
	signingKey ed25519.PrivateKey
}

func newHTTPPeerClient(baseURLs map[string]string, timeout time.Duration) *HTTPPeerClient {
	return &HTTPPeerClient{
		baseURLs: baseURLs,
		client:   &http.Client{Timeout: timeout},
	}
}

// WithSelf fixes the local VASP address used to build the /{recvvasp}/... segment
// of outbound requests. Must be called before the client delivers anything.
func (c *HTTPPeerClient) WithSelf(self address.Address) *HTTPPeerClient {
	c.self = self
	return c
}

// WithSigningKey attaches a detached-JWS X-VASP-Signature header over the
// request body to every outbound delivery. Omit to send unauthenticated
// requests, matching the reference transport's treatment of request
// authentication as an opt-in, external concern.
func (c *HTTPPeerClient) WithSigningKey(key ed25519.PrivateKey) *HTTPPeerClient {
	c.signingKey = key
	return c
}

func (c *HTTPPeerClient) Deliver(ctx context.Context, to address.Address, kind vasp.MessageKind, body []byte) ([]byte, error) {
	base, ok := c.baseURLs[to.String()]
	if !ok {
		return nil, fmt.Errorf("transport: no base URL configured for peer %s", to)
	}

	url := fmt.Sprintf("%s/%s/%s/process", base, to.String(), c.self.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: building request to %s: %w", to, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signingKey != nil {
		token, err := signDetached(c.signingKey, body)
		if err != nil {
			return nil, fmt.Errorf("transport: signing request to %s: %w", to, err)
		}
		req.Header.Set(detachedHeader, token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: delivering %s to %s: %w", kind, to, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response from %s: %w", to, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("transport: peer %s rejected %s with status %d: %s", to, kind, resp.StatusCode, out)
	}
	return out, nil
}
