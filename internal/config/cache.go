package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the response cache middleware used on
// reference-data reads such as GET /v1/roles.  When Enabled is false or no
// Redis client is configured, caching is disabled.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED" envDefault:"true"`
	MethodList   []string      `env:"CACHE_METHODS" envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
	Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache:auth"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"65536"`

	Methods map[string]bool
}

// LoadCacheConfig reads the environment and builds the method set.  All
// methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	var c CacheConfig
	_ = env.Parse(&c)
	c.Methods = parseMethods(c.MethodList)
	return c
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
