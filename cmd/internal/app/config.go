package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every configuration variable.
const EnvPrefix = "ATTENDANCE_"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`
	TrustProxy           bool     `env:"TRUST_PROXY" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"attendance"`

	// /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	RedisURL         string        `env:"REDIS_URL"`
	SessionKeyPrefix string        `env:"SESSION_KEY_PREFIX" envDefault:"attendance:session:"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"0s"`

	SQLitePath    string `env:"SQLITE_PATH"`
	DirectoryFile string `env:"DIRECTORY_FILE"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"15m"`

	WSAllowedOrigins     []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	WSOriginRequired     bool          `env:"WS_ORIGIN_REQUIRED" envDefault:"false"`
	WSInsecureSkipVerify bool          `env:"WS_INSECURE_SKIP_VERIFY" envDefault:"false"`
	WSSendQueue          int           `env:"WS_SEND_QUEUE" envDefault:"256"`
	WSWriteTimeout       time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	WSReadIdleTimeout    time.Duration `env:"WS_READ_IDLE_TIMEOUT" envDefault:"0s"`
	WSHeartbeatInterval  time.Duration `env:"WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	WSHeartbeatTimeout   time.Duration `env:"WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`
	WSRateEvents         int           `env:"WS_RATE_EVENTS" envDefault:"120"`
	WSRateWindow         time.Duration `env:"WS_RATE_WINDOW" envDefault:"10s"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// LoadConfig loads Config from ATTENDANCE_* environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
