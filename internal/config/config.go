// Package config parses the command line. The gateway is configured
// entirely through flags; the backend owns all persistent configuration.
package config

import (
	"flag"
	"fmt"
)

type Config struct {
	// Bind is the host:port the HTTP server listens on.
	Bind string
	// RedisURI points at the pub/sub broker.
	RedisURI string
	// MongoURI points at the session store.
	MongoURI string
	// MaxConnections is the admission ceiling for concurrent sockets.
	MaxConnections int
	// RateLimiterCredits is the per-IP token bucket capacity.
	RateLimiterCredits int

	// Development switches logging to the human-readable encoder.
	Development bool
}

// Parse reads flags from args (without the program name).
func Parse(name string, args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Bind, "bind", "127.0.0.1:9664", "host:port to listen on")
	fs.StringVar(&cfg.RedisURI, "redis", "redis://127.0.0.1/", "Redis URI for pub/sub")
	fs.StringVar(&cfg.MongoURI, "mongodb", "mongodb://127.0.0.1/", "MongoDB URI for the session store")
	fs.IntVar(&cfg.MaxConnections, "max-connections", 40000, "maximum concurrent WebSocket connections")
	fs.IntVar(&cfg.RateLimiterCredits, "rate-limiter-credits", 40, "client messages allowed per IP per 10 seconds")
	fs.BoolVar(&cfg.Development, "dev", false, "use the development log encoder")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("max-connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.RateLimiterCredits <= 0 {
		return nil, fmt.Errorf("rate-limiter-credits must be positive, got %d", cfg.RateLimiterCredits)
	}
	return cfg, nil
}
