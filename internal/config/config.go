package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token expiration modes. Anything else is interpreted as a minute count;
// unparsable values behave like "never".
const (
	TokenExpirationNever          = "never"
	TokenExpirationOpenIDProvider = "openid-provider"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Auth
		Secrets
		Audit
		Tasks
		Sweep
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}

	Database struct {
		Path string
	}

	Auth struct {
		// TokenExpiration is "never", "openid-provider", or a number of
		// minutes a session token stays valid after login.
		TokenExpiration string
		BcryptCost      int

		// ServerBaseURL is the externally reachable base URL, used to build
		// the federated callback redirect_uri.
		ServerBaseURL string

		// TrustedAuthProxies lists CIDRs allowed to assert the password
		// header on behalf of users. Header logins from other addresses are
		// rejected outright.
		TrustedAuthProxies []string

		// PendingStateTTL bounds the replay window of a federated login
		// that never completed its callback.
		PendingStateTTL time.Duration
	}

	Secrets struct {
		// EncryptionKey is an optional base64-encoded 32-byte AES key. When
		// set, secret values are encrypted at rest.
		EncryptionKey string
	}

	Audit struct {
		RetentionDays int
	}

	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}

	Sweep struct {
		Enabled  bool
		Schedule string // Cron format: "*/30 * * * *" = every 30 minutes
	}
)

// TokenExpirationMinutes returns the configured expiry minute count. The
// second return value is false for the "never" and "openid-provider" modes
// and for values that do not parse as a positive integer.
func (a Auth) TokenExpirationMinutes() (int, bool) {
	switch a.TokenExpiration {
	case TokenExpirationNever, TokenExpirationOpenIDProvider, "":
		return 0, false
	}
	minutes, err := strconv.Atoi(a.TokenExpiration)
	if err != nil || minutes <= 0 {
		return 0, false
	}
	return minutes, true
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 5006)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", "./data/account.db")

	// Auth defaults
	v.SetDefault("token_expiration", TokenExpirationNever)
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("server_base_url", "http://localhost:5006")
	v.SetDefault("trusted_auth_proxies", "")
	v.SetDefault("pending_state_ttl", "10m")

	// Secret storage and audit trail defaults
	v.SetDefault("secrets_encryption_key", "")
	v.SetDefault("audit_retention_days", 90)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	// Session sweep defaults
	v.SetDefault("sweep_enabled", true)
	v.SetDefault("sweep_schedule", "*/30 * * * *")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Auth: Auth{
			TokenExpiration:    v.GetString("TOKEN_EXPIRATION"),
			BcryptCost:         v.GetInt("AUTH_BCRYPT_COST"),
			ServerBaseURL:      strings.TrimRight(v.GetString("SERVER_BASE_URL"), "/"),
			TrustedAuthProxies: splitList(v.GetString("TRUSTED_AUTH_PROXIES")),
			PendingStateTTL:    v.GetDuration("PENDING_STATE_TTL"),
		},
		Secrets: Secrets{
			EncryptionKey: v.GetString("SECRETS_ENCRYPTION_KEY"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Sweep: Sweep{
			Enabled:  v.GetBool("SWEEP_ENABLED"),
			Schedule: v.GetString("SWEEP_SCHEDULE"),
		},
	}
}
