package config

import "time"

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

const (
	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "wasteops"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRateLimitRequests = 120
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 64 * 1024 // 64KB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLockTTL           = 10 * time.Minute
	DefaultLockSweepInterval = 30 * time.Second
	DefaultLockBackend       = BackendMemory

	DefaultKafkaEnabled         = false
	DefaultKafkaLockEventsTopic = "planning-lock-events"
	DefaultKafkaPublishQueue    = 1024
)
