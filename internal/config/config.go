package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	VASP     VASPConfig
	Security SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// VASPConfig holds this node's own off-chain protocol identity and the
// settings governing how it talks to counterparties.
type VASPConfig struct {
	// OwnAddress is this VASP's own Bech32 address, used on every channel
	// this node opens.
	OwnAddress string
	// PeerBaseURLs maps a counterparty's Bech32 address to the base URL
	// of their off-chain protocol HTTP endpoint, parsed from a
	// comma-separated "address=url" list.
	PeerBaseURLs map[string]string
	// RetransmitInterval governs how often a channel with an outstanding
	// unanswered request is nudged to resend it.
	RetransmitInterval time.Duration
	// RequestTimeout bounds how long an outbound peer HTTP call may take.
	RequestTimeout time.Duration
	// SigningKey is this node's own Ed25519 private key, used both for
	// defaultbusiness's recipient-signature verification and to sign the
	// detached-JWS authentication header on outbound protocol requests.
	// Parsed from a hex-encoded seed; nil if unset or malformed.
	SigningKey ed25519.PrivateKey
	// PeerComplianceKeys maps a counterparty's Bech32 address to their
	// Ed25519 public key, used to verify the detached-JWS header on
	// incoming protocol requests. A peer absent from this map is accepted
	// unauthenticated, matching the reference transport's treatment of
	// request authentication as an external, opt-in concern.
	PeerComplianceKeys map[string]ed25519.PublicKey
}

// SecurityConfig holds security encryption keys
type SecurityConfig struct {
	ApiKeyEncryptionKey  string
	SessionEncryptionKey string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "vasp_offchain"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-in-production"),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		VASP: VASPConfig{
			OwnAddress:         getEnv("VASP_OWN_ADDRESS", ""),
			PeerBaseURLs:       getEnvAsPeerMap("VASP_PEER_BASE_URLS", ""),
			RetransmitInterval: getEnvAsDuration("VASP_RETRANSMIT_INTERVAL", 5*time.Second),
			RequestTimeout:     getEnvAsDuration("VASP_REQUEST_TIMEOUT", 10*time.Second),
			SigningKey:         getEnvAsSigningKey("VASP_SIGNING_KEY_HEX"),
			PeerComplianceKeys: getEnvAsPeerKeyMap("VASP_PEER_COMPLIANCE_KEYS"),
		},
		Security: SecurityConfig{
			ApiKeyEncryptionKey:  getEnv("API_KEY_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-bytes hex string
			SessionEncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-bytes hex string
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsPeerMap parses a comma-separated "address=url,address=url" list
// into a lookup table, skipping any entry that isn't a well-formed pair.
func getEnvAsPeerMap(key, defaultValue string) map[string]string {
	value := getEnv(key, defaultValue)
	peers := make(map[string]string)
	if value == "" {
		return peers
	}
	for _, pair := range strings.Split(value, ",") {
		addr, url, ok := strings.Cut(pair, "=")
		if !ok || addr == "" || url == "" {
			continue
		}
		peers[addr] = url
	}
	return peers
}

// getEnvAsSigningKey parses a hex-encoded Ed25519 seed (32 bytes) into a
// private key, returning nil if the variable is unset or malformed.
func getEnvAsSigningKey(key string) ed25519.PrivateKey {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	seed, err := hex.DecodeString(value)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil
	}
	return ed25519.NewKeyFromSeed(seed)
}

// getEnvAsPeerKeyMap parses a comma-separated "address=hexpubkey,..." list
// into a lookup table, skipping any entry that isn't a well-formed pair or
// whose key isn't a valid 32-byte Ed25519 public key.
func getEnvAsPeerKeyMap(key string) map[string]ed25519.PublicKey {
	value := os.Getenv(key)
	peers := make(map[string]ed25519.PublicKey)
	if value == "" {
		return peers
	}
	for _, pair := range strings.Split(value, ",") {
		addr, hexKey, ok := strings.Cut(pair, "=")
		if !ok || addr == "" || hexKey == "" {
			continue
		}
		raw, err := hex.DecodeString(hexKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		peers[addr] = ed25519.PublicKey(raw)
	}
	return peers
}
