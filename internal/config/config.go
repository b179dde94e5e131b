package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	AuthJWTSecret string
	OTLPEndpoint  string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Fusion    FusionConfig
	RateLimit RateLimitConfig

	FeatureFlagsFile string
	SeedDemoData     bool
}

// FusionConfig configures the fusion commit engine.
type FusionConfig struct {
	EngineVersion string
	HMACKeys      map[string]string
	HMACActiveKey string
	TxTimeout     time.Duration
	MinMaterials  int
	MaxMaterials  int
}

// RateLimitConfig configures request throttling per action class.
type RateLimitConfig struct {
	Enabled       bool
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Actions       map[string]ActionLimit
}

// ActionLimit is the allowance for one action class within a window.
type ActionLimit struct {
	Limit  int
	Window time.Duration
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"

	ActionFusion = "fusion"
	ActionGacha  = "gacha"

	// ActionFusionReplay budgets ledger lookups for throttled fusion retries.
	ActionFusionReplay = "fusion_replay"
)

// Development signing key, never used when ENVIRONMENT=production.
const (
	devHMACKeyID  = "dev"
	devHMACSecret = "cardforge-development-only"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "cardforge"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		AuthJWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4318"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cardforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Fusion: FusionConfig{
			EngineVersion: getenv("FUSION_ENGINE_VERSION", "fusion-engine/2.0"),
			HMACKeys:      parseKeys(getenv("FUSION_HMAC_KEYS", "")),
			HMACActiveKey: strings.TrimSpace(getenv("FUSION_HMAC_ACTIVE_KEY", "")),
			TxTimeout:     time.Duration(getenvInt("FUSION_TX_TIMEOUT_MS", 5000)) * time.Millisecond,
			MinMaterials:  getenvInt("FUSION_MIN_MATERIALS", 3),
			MaxMaterials:  getenvInt("FUSION_MAX_MATERIALS", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			Backend:       normalizeBackend(getenv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			Actions: map[string]ActionLimit{
				ActionFusion: {
					Limit:  getenvInt("RATE_LIMIT_FUSION_LIMIT", 10),
					Window: time.Duration(getenvInt("RATE_LIMIT_FUSION_WINDOW_SECONDS", 60)) * time.Second,
				},
				ActionFusionReplay: {
					Limit:  getenvInt("RATE_LIMIT_FUSION_REPLAY_LIMIT", 30),
					Window: time.Duration(getenvInt("RATE_LIMIT_FUSION_REPLAY_WINDOW_SECONDS", 60)) * time.Second,
				},
				ActionGacha: {
					Limit:  getenvInt("RATE_LIMIT_GACHA_LIMIT", 30),
					Window: time.Duration(getenvInt("RATE_LIMIT_GACHA_WINDOW_SECONDS", 60)) * time.Second,
				},
			},
		},
		FeatureFlagsFile: strings.TrimSpace(getenv("FEATURE_FLAGS_FILE", "")),
		SeedDemoData:     getenvBool("SEED_DEMO_DATA", environment != "production"),
	}

	if len(cfg.Fusion.HMACKeys) == 0 && !cfg.IsProduction() {
		cfg.Fusion.HMACKeys = map[string]string{devHMACKeyID: devHMACSecret}
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RateLimitBackendRedis:
		return RateLimitBackendRedis
	default:
		return RateLimitBackendMemory
	}
}

// parseKeys reads "kid:secret,kid2:secret2" pairs.
func parseKeys(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		kid = strings.TrimSpace(kid)
		secret = strings.TrimSpace(secret)
		if !ok || kid == "" || secret == "" {
			continue
		}
		out[kid] = secret
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
