package http

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v3"
)

// detachedHeader carries a signature over the raw request body between two
// VASPs, matching spec.md's "mTLS or detached JWS over the payload,
// validated outside the core" — the command/response codec itself never
// sees or validates this header.
const detachedHeader = "X-VASP-Signature"

// signDetached produces a detached-compact EdDSA JWS over payload: the
// usual three-segment compact serialization with the middle (payload)
// segment stripped, since the payload travels as the request body itself
// rather than being re-encoded into the token.
func signDetached(priv ed25519.PrivateKey, payload []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, nil)
	if err != nil {
		return "", fmt.Errorf("detachedjws: building signer: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("detachedjws: signing: %w", err)
	}
	return sig.DetachedCompactSerialize()
}

// verifyDetached checks that detached is a valid EdDSA JWS over payload
// under pub, by reattaching the payload into the stripped middle segment
// before parsing.
func verifyDetached(pub ed25519.PublicKey, payload []byte, detached string) error {
	parts := strings.Split(detached, ".")
	if len(parts) != 3 {
		return fmt.Errorf("detachedjws: malformed token")
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(payload)

	obj, err := jose.ParseSigned(strings.Join(parts, "."))
	if err != nil {
		return fmt.Errorf("detachedjws: parsing: %w", err)
	}
	if _, err := obj.Verify(pub); err != nil {
		return fmt.Errorf("detachedjws: verification failed: %w", err)
	}
	return nil
}
