package inventory

import (
	"github.com/cboxdk/sysinventory/internal/config"
)

// Config is the inventory configuration. See LoadConfig for the YAML layout.
type Config = config.Config

// LoadConfig reads, defaults and validates a YAML configuration file:
//
//	platform:
//	  timeout: 10s
//	cache:
//	  policies:
//	    short-lived-stat: 500ms
//	    static: never
//	processes:
//	  root_pid: 0
//	logging:
//	  level: info
//	metrics:
//	  enabled: true
//	  namespace: sysinventory
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	return config.Default()
}
