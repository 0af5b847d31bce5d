package config

import "time"

// Server defaults
const (
	DefaultPort            = "8080"
	DefaultDataDir         = "./data/clusterwatch"
	DefaultMaxStorageGB    = 1
	DefaultMaxMemoryMB     = 48
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Storage backends
const (
	BackendBadger = "badger"
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Regeneration schedule
const (
	RegenerationInterval   = 1 * time.Hour
	RegenerationMaxRetries = 3
	RegenerationRetryDelay = 30 * time.Second
	RegenerationTimeout    = 5 * time.Minute
	BadgerGCInterval       = 10 * time.Minute
	BadgerGCDiscardRatio   = 0.5
)

// Request timeouts
const (
	MetricsTimeout  = 10 * time.Second
	StatsTimeout    = 5 * time.Second
	EntitiesTimeout = 5 * time.Second
)

// Read cache
const (
	DefaultCacheTTL = 30 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
