package config

import "time"

// Session TTLs. Solo sessions pick one by variant; group sessions are fixed.
const (
	QuickSessionTTL   = 30 * time.Minute
	HangoutSessionTTL = 120 * time.Minute
	GroupSessionTTL   = 120 * time.Minute
)

// Sharing code shape
const (
	CodeLength = 8
)

// Group capacity. Joins beyond this are rejected, not queued.
const MaxGroupMembers = 10

// Location channel tuning
const (
	// Minimum gap between store writes per participant, regardless of how
	// fast the device emits fixes.
	LocationWriteInterval = 5 * time.Second

	// Distance at which the proximity latch arms.
	ArrivalRadiusMetres = 50.0
)

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const SweepJobInterval = time.Minute
