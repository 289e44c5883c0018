package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Booking      BookingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIVO_APP_ENV" required:"true"`
	Port         string `envconfig:"LIVO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIVO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIVO_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"LIVO_LOG_FORMAT" default:"json"`
	Timezone     string `envconfig:"LIVO_APP_TIMEZONE" default:"UTC"`
	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"LIVO_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,https://livo.app,https://admin.livo.app"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the timezone used to decide what "today" means for
// inventory dates. Unknown names fall back to UTC.
func (a AppConfig) Location() *time.Location {
	if strings.TrimSpace(a.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ServiceConfig struct {
	Kind string `envconfig:"LIVO_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"LIVO_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN string `envconfig:"LIVO_DB_DSN"`

	LegacyHost     string `envconfig:"LIVO_DB_HOST"`
	LegacyPort     int    `envconfig:"LIVO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LIVO_DB_USER"`
	LegacyPassword string `envconfig:"LIVO_DB_PASSWORD"`
	LegacyName     string `envconfig:"LIVO_DB_NAME"`
	LegacySSLMode  string `envconfig:"LIVO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIVO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIVO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIVO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIVO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// Queries slower than this are logged at warn level. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"LIVO_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIVO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LIVO_REDIS_ADDR"`
	Password     string        `envconfig:"LIVO_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIVO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIVO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIVO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIVO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIVO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIVO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RateLimitConfig throttles API traffic per client IP in fixed windows.
type RateLimitConfig struct {
	Enabled  bool          `envconfig:"LIVO_RATE_LIMIT_ENABLED" default:"true"`
	Requests int           `envconfig:"LIVO_RATE_LIMIT_REQUESTS" default:"100"`
	Window   time.Duration `envconfig:"LIVO_RATE_LIMIT_WINDOW" default:"1m"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LIVO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LIVO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LIVO_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway tolerates clock skew against the identity service.
	Leeway time.Duration `envconfig:"LIVO_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIVO_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LIVO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LIVO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LIVO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LIVO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic          string `envconfig:"LIVO_PUBSUB_BOOKING_TOPIC" default:"livo-booking-events"`
	PaymentTopic          string `envconfig:"LIVO_PUBSUB_PAYMENT_TOPIC" default:"livo-payment-events"`
	PaymentSubscription   string `envconfig:"LIVO_PUBSUB_PAYMENT_SUBSCRIPTION" default:"livo-payment-events-sub"`
	RefundTopic           string `envconfig:"LIVO_PUBSUB_REFUND_TOPIC" default:"livo-refund-events"`
	RefundSubscription    string `envconfig:"LIVO_PUBSUB_REFUND_SUBSCRIPTION" default:"livo-refund-events-sub"`
	AnalyticsSubscription string `envconfig:"LIVO_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"livo-booking-events-analytics-sub"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"LIVO_BIGQUERY_DATASET" default:"livo"`
	BookingEventsTable string `envconfig:"LIVO_BIGQUERY_BOOKING_EVENTS_TABLE" default:"booking_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LIVO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LIVO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LIVO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"LIVO_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"LIVO_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"LIVO_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"LIVO_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"LIVO_SQUARE_WEBHOOK_URL"`
	Currency      string `envconfig:"LIVO_SQUARE_CURRENCY" default:"USD"`
	// RateLimit caps outbound Square calls per second; zero disables the limiter.
	RateLimit int `envconfig:"LIVO_SQUARE_RATE_LIMIT" default:"10"`
	// ClientSigningSecret signs orderID|paymentID for the client confirmation path.
	ClientSigningSecret string `envconfig:"LIVO_PAYMENT_CLIENT_SIGNING_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type BookingConfig struct {
	SessionTTL          time.Duration `envconfig:"LIVO_BOOKING_SESSION_TTL" default:"10m"`
	IdempotencyTTL      time.Duration `envconfig:"LIVO_BOOKING_IDEMPOTENCY_TTL" default:"10m"`
	MaxNights           int           `envconfig:"LIVO_BOOKING_MAX_NIGHTS" default:"30"`
	SweepPageSize       int           `envconfig:"LIVO_BOOKING_SWEEP_PAGE_SIZE" default:"50"`
	SweepMaxPerRun      int           `envconfig:"LIVO_BOOKING_SWEEP_MAX_PER_RUN" default:"2000"`
	SweepInterval       time.Duration `envconfig:"LIVO_BOOKING_SWEEP_INTERVAL" default:"1m"`
	LockTimeout         time.Duration `envconfig:"LIVO_INVENTORY_LOCK_TIMEOUT" default:"3s"`
	RepricingPageSize   int           `envconfig:"LIVO_PRICING_PAGE_SIZE" default:"365"`
	RepricingInterval   time.Duration `envconfig:"LIVO_PRICING_INTERVAL" default:"1h"`
	InventoryHorizonDay int           `envconfig:"LIVO_INVENTORY_HORIZON_DAYS" default:"365"`
}

func (b BookingConfig) validate() error {
	if b.MaxNights <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingMaxNights)
	}
	if b.SweepPageSize <= 0 || b.SweepMaxPerRun <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvBookingSweepPageSize, EnvBookingSweepMaxPerRun)
	}
	if b.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingSessionTTL)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
