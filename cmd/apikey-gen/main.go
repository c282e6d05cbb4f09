package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
)

// apikey-gen mints a bearer token and HMAC shared secret for a new
// counterparty VASP being registered against the admin introspection API,
// analogous to provisioning an API consumer's credentials.
func main() {
	env := flag.String("env", "live", "credential environment: live or test")
	hexLen := flag.Int("hex-len", 32, "random hex length (must be even)")
	flag.Parse()

	if *env != "live" && *env != "test" {
		log.Fatalf("invalid env: %s (allowed: live, test)", *env)
	}
	if *hexLen <= 0 || *hexLen%2 != 0 {
		log.Fatalf("invalid hex-len: %d (must be positive and even)", *hexLen)
	}

	tokenRaw, err := generateRandomHex(*hexLen)
	if err != nil {
		log.Fatalf("failed to generate bearer token: %v", err)
	}
	secretRaw, err := generateRandomHex(*hexLen)
	if err != nil {
		log.Fatalf("failed to generate shared secret: %v", err)
	}

	token := fmt.Sprintf("pt_%s_%s", *env, tokenRaw)
	secret := fmt.Sprintf("ps_%s_%s", *env, secretRaw)

	fmt.Println("Generated peer VASP credentials")
	fmt.Printf("PEER_BEARER_TOKEN=%s\n", token)
	fmt.Printf("PEER_SHARED_SECRET=%s\n", secret)
}

func generateRandomHex(n int) (string, error) {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
