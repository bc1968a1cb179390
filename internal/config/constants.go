package config

import "time"

const (
	// Server ports.
	DefaultHTTPPort = 8080
	DefaultGRPCPort = 9090

	DefaultShutdownTimeout = 30 * time.Second

	// Database defaults.
	DefaultPostgresPort = 5432
	DefaultMaxOpenConns = 25
	DefaultMaxIdleConns = 5

	// Event bus defaults.
	DefaultNamespace           = "moment"
	DefaultKafkaRetryInitial   = 100 * time.Millisecond
	DefaultKafkaRetries        = 8
	DefaultKafkaSessionTimeout = 30 * time.Second
	DefaultKafkaHeartbeat      = 3 * time.Second

	// Push provider defaults.
	DefaultExpoSendURL     = "https://exp.host/--/api/v2/push/send"
	DefaultExpoReceiptsURL = "https://exp.host/--/api/v2/push/getReceipts"
	DefaultPushChunkSize   = 100
	DefaultReceiptDelay    = 15 * time.Minute

	// Scheduler defaults.
	DefaultSweepBatch  = 50
	DefaultMaxAttempts = 3
)
