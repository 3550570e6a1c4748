package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	JWTSecret    string
	TokenTTL     time.Duration
	AllowDevAuth bool

	IdentityMode       string
	IdentityRemoteURL  string
	IdentityRemotePath string
	IdentityIssuer     string
	IdentityAudience   string
	IdentitySecret     string

	StoreBackend  string
	StoreFile     string
	RedisURL      string
	RedisStateKey string

	DatabaseURL string

	TimeZone          string
	LeaderboardLocale string

	ChallengeTTL   time.Duration
	ChallengeSweep time.Duration

	MessagesDir string

	WSOutboxSize int
	WSPing       time.Duration
}

// LoadDotEnv loads the given files (default .env) without overriding set variables.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:          ":8080",
		TokenTTL:          7 * 24 * time.Hour,
		IdentityMode:      "jwt",
		StoreBackend:      "file",
		StoreFile:         "data/arena.json",
		RedisStateKey:     "arena:state",
		TimeZone:          "UTC",
		LeaderboardLocale: "en",
		ChallengeTTL:      60 * time.Second,
		ChallengeSweep:    10 * time.Second,
		WSOutboxSize:      32,
		WSPing:            30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if v := strings.TrimSpace(os.Getenv("TOKEN_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TokenTTL = time.Duration(n) * time.Hour
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOW_DEV_AUTH")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.AllowDevAuth = b
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("IDENTITY_MODE"))); v != "" {
		cfg.IdentityMode = v
	}
	cfg.IdentityRemoteURL = strings.TrimSpace(os.Getenv("IDENTITY_REMOTE_URL"))
	cfg.IdentityRemotePath = strings.TrimSpace(os.Getenv("IDENTITY_REMOTE_PATH"))
	cfg.IdentityIssuer = strings.TrimSpace(os.Getenv("IDENTITY_JWT_ISSUER"))
	cfg.IdentityAudience = strings.TrimSpace(os.Getenv("IDENTITY_JWT_AUDIENCE"))
	cfg.IdentitySecret = strings.TrimSpace(os.Getenv("IDENTITY_JWT_SECRET"))
	if cfg.IdentitySecret == "" {
		cfg.IdentitySecret = cfg.JWTSecret
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))); v != "" {
		cfg.StoreBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("STORE_FILE")); v != "" {
		cfg.StoreFile = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("REDIS_STATE_KEY")); v != "" {
		cfg.RedisStateKey = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("APP_TIMEZONE")); v != "" {
		cfg.TimeZone = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADERBOARD_LOCALE")); v != "" {
		cfg.LeaderboardLocale = v
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChallengeTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_SWEEP_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChallengeSweep = time.Duration(n) * time.Second
		}
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("WS_OUTBOX_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WSOutboxSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WSPing = time.Duration(n) * time.Second
		}
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	switch cfg.IdentityMode {
	case "jwt":
	case "remote":
		if cfg.IdentityRemoteURL == "" {
			return nil, errors.New("IDENTITY_REMOTE_URL is required when IDENTITY_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("unknown IDENTITY_MODE %q", cfg.IdentityMode)
	}
	switch cfg.StoreBackend {
	case "file":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}
