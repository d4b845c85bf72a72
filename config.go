package portalauth

import (
	"errors"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable the engine needs. Populate it explicitly or
// via [ConfigFromEnv]; there are no implicit globals.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Reset    ResetConfig
	Cookie   CookieConfig
	Mail     MailConfig
	Redis    RedisConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig holds the two independent signing secrets and token lifetimes.
// Access and refresh tokens are never signed with the same secret.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// PasswordConfig tunes the argon2id hasher.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// ResetConfig tunes the password-reset flow. BaseURL is the portal frontend
// origin the reset link is built on.
type ResetConfig struct {
	TokenBytes int
	TTL        time.Duration
	BaseURL    string
}

// CookieConfig controls the protected session cookies.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// MailConfig points at the outbound mail API. The engine only sees a
// mail.Sender; these values feed the adapter constructor.
type MailConfig struct {
	Endpoint string
	APIKey   string
	From     string
}

// RedisConfig locates the Redis behind store/redisstore. The engine never
// dials Redis itself; deployments read these values when wiring the store.
type RedisConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: 60-minute access tokens,
// 1-day refresh tokens, 20-byte hex reset tokens valid for one hour, and
// moderate argon2id parameters. Secrets and the reset base URL must still be
// provided.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  60 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Reset: ResetConfig{
			TokenBytes: 20,
			TTL:        time.Hour,
		},
		Cookie: CookieConfig{
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.JWT.AccessSecret == "" {
		return errors.New("access token secret required")
	}
	if c.JWT.RefreshSecret == "" {
		return errors.New("refresh token secret required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.JWT.AccessTTL > c.JWT.RefreshTTL {
		return errors.New("access token lifetime exceeds refresh lifetime")
	}
	if c.Reset.TokenBytes < 16 {
		return errors.New("reset token must be at least 16 bytes")
	}
	if c.Reset.TTL <= 0 {
		return errors.New("reset token lifetime must be positive")
	}
	if c.Reset.BaseURL == "" {
		return errors.New("reset base URL required")
	}
	return nil
}

type envConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"60m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`
	ResetBaseURL  string        `env:"RESET_BASE_URL,required"`
	ResetTTL      time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain  string        `env:"COOKIE_DOMAIN"`
	MailEndpoint  string        `env:"MAIL_API_ENDPOINT"`
	MailAPIKey    string        `env:"MAIL_API_KEY"`
	MailFrom      string        `env:"MAIL_FROM"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisPrefix   string        `env:"REDIS_KEY_PREFIX"`
}

// ConfigFromEnv builds a Config from the recognized environment options on
// top of [DefaultConfig].
func ConfigFromEnv() (Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = e.AccessSecret
	cfg.JWT.RefreshSecret = e.RefreshSecret
	cfg.JWT.AccessTTL = e.AccessTTL
	cfg.JWT.RefreshTTL = e.RefreshTTL
	cfg.Reset.BaseURL = e.ResetBaseURL
	cfg.Reset.TTL = e.ResetTTL
	cfg.Cookie.Secure = e.CookieSecure
	cfg.Cookie.Domain = e.CookieDomain
	cfg.Mail.Endpoint = e.MailEndpoint
	cfg.Mail.APIKey = e.MailAPIKey
	cfg.Mail.From = e.MailFrom
	cfg.Redis.Addr = e.RedisAddr
	cfg.Redis.Password = e.RedisPassword
	cfg.Redis.KeyPrefix = e.RedisPrefix

	return cfg, cfg.Validate()
}
