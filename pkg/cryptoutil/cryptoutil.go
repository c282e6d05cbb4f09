// Package cryptoutil collects the cryptographic primitives the VASP stack
// needs: bcrypt password hashing for the admin surface, and Ed25519
// signing/verification for the compliance signatures payment actors
// attach to their KYC data and recipient signatures. Grounded on
// pkg/crypto/password.go, generalized with an Ed25519 counterpart.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

// Indirected through package vars, matching the teacher's pattern, so
// tests can stub out randomness and the bcrypt cost without a real call.
var (
	bcryptGenerateFromPassword = bcrypt.GenerateFromPassword
	randomRead                 = rand.Read
)

func HashPassword(password string) (string, error) {
	bytes, err := bcryptGenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: hashing password: %w", err)
	}
	return string(bytes), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func GenerateRandomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := randomRead(buf); err != nil {
		return "", fmt.Errorf("cryptoutil: generating random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSigningKey produces a fresh Ed25519 keypair, the compliance key
// a VASP uses to sign KYC data and recipient signatures exchanged over a
// channel.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoutil: generating signing key: %w", err)
	}
	return pub, priv, nil
}

// Sign produces a hex-encoded Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, message))
}

// Verify checks a hex-encoded Ed25519 signature over message.
func Verify(pub ed25519.PublicKey, message []byte, hexSignature string) bool {
	sig, err := hex.DecodeString(hexSignature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
