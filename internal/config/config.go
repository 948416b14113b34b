package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds service configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTAccessSecret  string        `envconfig:"JWT_ACCESS_SECRET" required:"true"`
	JWTRefreshSecret string        `envconfig:"JWT_REFRESH_SECRET" required:"true"`
	AccessTokenTTL   time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"168h"`
	RefreshTokenTTL  time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
	RefreshThreshold time.Duration `envconfig:"REFRESH_THRESHOLD" default:"24h"`

	SessionInactivityTimeout time.Duration `envconfig:"SESSION_INACTIVITY_TIMEOUT" default:"30m"`
	MaxSessionDuration       time.Duration `envconfig:"MAX_SESSION_DURATION" default:"2160h"`
	SessionSweepInterval     time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1h"`

	BcryptCost          int    `envconfig:"BCRYPT_COST" default:"12"`
	AdminOverrideSecret string `envconfig:"ADMIN_OVERRIDE_SECRET" default:""`

	LoginRatePerMinute int `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`
	LoginRateBurst     int `envconfig:"LOGIN_RATE_BURST" default:"5"`

	TokenDelivery  string `envconfig:"TOKEN_DELIVERY" default:"both"`
	CookieSecure   bool   `envconfig:"COOKIE_SECURE" default:"false"`
	CookieSameSite string `envconfig:"COOKIE_SAME_SITE" default:"lax"`

	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	GitHub    OAuthProvider `envconfig:"GITHUB"`
	Google    OAuthProvider `envconfig:"GOOGLE"`
	GitLab    OAuthProvider `envconfig:"GITLAB"`
	Bitbucket OAuthProvider `envconfig:"BITBUCKET"`
}

// OAuthProvider holds the credentials for one federation provider. A provider
// with an empty client id is treated as not configured.
type OAuthProvider struct {
	ClientID     string `envconfig:"CLIENT_ID" default:""`
	ClientSecret string `envconfig:"CLIENT_SECRET" default:""`
	RedirectURI  string `envconfig:"REDIRECT_URI" default:""`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
