package config

const (
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockTTL           = "LOCK_TTL"
	EnvLockSweepInterval = "LOCK_SWEEP_INTERVAL"
	EnvLockBackend       = "LOCK_BACKEND"

	EnvJWTSecret = "JWT_SECRET"

	EnvKafkaEnabled         = "KAFKA_ENABLED"
	EnvKafkaLockEventsTopic = "KAFKA_LOCK_EVENTS_TOPIC"
	EnvKafkaPublishQueue    = "KAFKA_PUBLISH_QUEUE_SIZE"

	EnvWSAllowedOrigins = "WS_ALLOWED_ORIGINS"
)
