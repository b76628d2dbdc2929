package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/weavesync/internal/flagx"
	"github.com/dmitrijs2005/weavesync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Pointer fields distinguish
// "absent" from zero values, so a partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddr       *string         `json:"endpoint_addr"`
	DataDir            *string         `json:"data_dir"`
	Prefix             *string         `json:"prefix"`
	EnableRegistration *bool           `json:"enable_registration"`
	QuotaKB            *int64          `json:"quota_kb"`
	ShutdownTimeout    *timex.Duration `json:"shutdown_timeout"`
}

// parseJson overlays values from the JSON file named by -c/-config.
// Without the flag nothing is loaded. An unreadable or invalid file panics:
// it is a startup misconfiguration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != nil {
		config.EndpointAddr = *c.EndpointAddr
	}
	if c.DataDir != nil {
		config.DataDir = *c.DataDir
	}
	if c.Prefix != nil {
		config.Prefix = *c.Prefix
	}
	if c.EnableRegistration != nil {
		config.EnableRegistration = *c.EnableRegistration
	}
	if c.QuotaKB != nil {
		config.QuotaKB = *c.QuotaKB
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}
