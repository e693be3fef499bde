package gcp

import "os"

// GetEnv is a helper to read an environment variable or return a default
// value. It centralizes configuration lookup for all services.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
