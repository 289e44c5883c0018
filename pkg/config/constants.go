package config

const (
	EnvPrefix = "LIVO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "LIVO_APP_ENV"
	EnvPort     = "LIVO_APP_PORT"
	EnvLogLevel = "LIVO_LOG_LEVEL"

	EnvDBDSN  = "LIVO_DB_DSN"
	EnvDBHost = "LIVO_DB_HOST"
	EnvDBUser = "LIVO_DB_USER"
	EnvDBName = "LIVO_DB_NAME"

	EnvRedisURL = "LIVO_REDIS_URL"

	EnvJWTSecret = "LIVO_JWT_SECRET"
	EnvJWTIssuer = "LIVO_JWT_ISSUER"

	EnvGCPProjectID = "LIVO_GCP_PROJECT_ID"

	EnvPubSubPaymentTopic = "LIVO_PUBSUB_PAYMENT_TOPIC"
	EnvPubSubRefundTopic  = "LIVO_PUBSUB_REFUND_TOPIC"

	EnvBookingSessionTTL     = "LIVO_BOOKING_SESSION_TTL"
	EnvBookingMaxNights      = "LIVO_BOOKING_MAX_NIGHTS"
	EnvBookingSweepPageSize  = "LIVO_BOOKING_SWEEP_PAGE_SIZE"
	EnvBookingSweepMaxPerRun = "LIVO_BOOKING_SWEEP_MAX_PER_RUN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
