package config

import "github.com/gzhole/toolwarden/internal/rpc"

// Environment variables the gateway sets for each invocation.
const (
	EnvSessionID        = "SESSION_ID"
	EnvClientIP         = "CLIENT_IP"
	EnvUserRole         = "USER_ROLE"
	EnvUserAgent        = "USER_AGENT"
	EnvAuthLevel        = "AUTH_LEVEL"
	EnvProcessingTimeMS = "PROCESSING_TIME_MS"
	EnvMemoryUsageMB    = "MEMORY_USAGE_MB"
)

// SessionFromEnv reads the session context through getenv, normally
// os.Getenv. Unset values take their defaults.
func SessionFromEnv(getenv func(string) string) rpc.Session {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	return rpc.Session{
		SessionID:        get(EnvSessionID, "unknown"),
		ClientIP:         get(EnvClientIP, "0.0.0.0"),
		UserRole:         get(EnvUserRole, "user"),
		UserAgent:        get(EnvUserAgent, "unknown"),
		AuthLevel:        get(EnvAuthLevel, "basic"),
		ProcessingTimeMS: get(EnvProcessingTimeMS, "unknown"),
		MemoryUsageMB:    get(EnvMemoryUsageMB, "unknown"),
	}
}
