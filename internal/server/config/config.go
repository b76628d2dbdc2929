// Package config handles configuration for the storage server, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the weavesync server.
//
// Fields:
//   - EndpointAddr: bind address of the HTTP endpoint.
//   - DataDir: directory holding one sqlite store per user.
//   - Prefix: URL prefix stripped from request paths (reverse proxies).
//   - EnableRegistration: whether PUT /user/... may create accounts.
//   - QuotaKB: quota reported by info/quota; 0 reports no quota (null).
//   - ShutdownTimeout: grace period for in-flight requests on shutdown.
//   - Register: "user[:password]" to create a store and exit.
type Config struct {
	EndpointAddr       string
	DataDir            string
	Prefix             string
	EnableRegistration bool
	QuotaKB            int64
	ShutdownTimeout    time.Duration
	Register           string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = "127.0.0.1:8080"
	c.DataDir = ".data"
	c.Prefix = ""
	c.EnableRegistration = true
	c.QuotaKB = 0
	c.ShutdownTimeout = 5 * time.Second
	c.Register = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
