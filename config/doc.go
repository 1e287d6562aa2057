// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the listener address, backend pool layout (host, base port, count),
// health check timing, proxy timeout, and rate limiting.
package config
