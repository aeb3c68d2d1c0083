// Package config builds the service configuration from environment
// variables so main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the verifier needs at startup.
type Config struct {
	Addr     string
	LogLevel string

	// Distribution hosts. Business rules, value sets and countries come
	// from RulesBaseURL; booster rules from BoosterBaseURL; the signed DSC
	// list from TrustBaseURL.
	RulesBaseURL   string
	BoosterBaseURL string
	TrustBaseURL   string

	// TrustAnchorPEM is the pinned public key the DSC list signature is
	// verified against.
	TrustAnchorPEM string

	// CheckCountry is the jurisdiction whose acceptance rules scans are
	// verified against.
	CheckCountry string

	// SeedDir optionally points at bundled JSON assets that prepopulate
	// empty rule, value set and country tables before the first sync.
	SeedDir string

	// BlacklistHashes seeds the revocation set, comma separated SHA-512
	// hex digests.
	BlacklistHashes []string

	SyncInterval    time.Duration
	BoosterInterval time.Duration
	FetchLimit      int

	RedisAddr     string
	RedisPassword string
	PostgresDSN   string
	KafkaBrokers  string
	KafkaTopic    string

	// AdminJWTKey signs and verifies the admin endpoint tokens.
	AdminJWTKey string
}

// FromEnv reads the CERTPASS_* environment, applying development defaults
// for everything but the trust anchor.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("CERTPASS_ADDR", ":8080"),
		LogLevel:        envOr("CERTPASS_LOG_LEVEL", "info"),
		RulesBaseURL:    envOr("CERTPASS_RULES_URL", "https://distribution.dcc-rules.de"),
		BoosterBaseURL:  envOr("CERTPASS_BOOSTER_RULES_URL", "https://distribution.dcc-rules.de/bnrules"),
		TrustBaseURL:    envOr("CERTPASS_TRUST_URL", "https://de.dscg.ubirch.com"),
		TrustAnchorPEM:  os.Getenv("CERTPASS_TRUST_ANCHOR_PEM"),
		CheckCountry:    envOr("CERTPASS_CHECK_COUNTRY", "DE"),
		SeedDir:         os.Getenv("CERTPASS_SEED_DIR"),
		SyncInterval:    envDuration("CERTPASS_SYNC_INTERVAL", 24*time.Hour),
		BoosterInterval: envDuration("CERTPASS_BOOSTER_INTERVAL", time.Hour),
		FetchLimit:      envInt("CERTPASS_FETCH_LIMIT", 8),
		RedisAddr:       os.Getenv("CERTPASS_REDIS_ADDR"),
		RedisPassword:   os.Getenv("CERTPASS_REDIS_PASSWORD"),
		PostgresDSN:     os.Getenv("CERTPASS_POSTGRES_DSN"),
		KafkaBrokers:    os.Getenv("CERTPASS_KAFKA_BROKERS"),
		KafkaTopic:      envOr("CERTPASS_KAFKA_TOPIC", "certpass.scan-events"),
		AdminJWTKey:     envOr("CERTPASS_ADMIN_JWT_KEY", "dev-secret-key-change-in-production"),
	}

	if raw := os.Getenv("CERTPASS_BLACKLIST_HASHES"); raw != "" {
		for _, h := range strings.Split(raw, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.BlacklistHashes = append(cfg.BlacklistHashes, h)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
