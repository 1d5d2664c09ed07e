package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every process-level option. Cache settings for each lookup
// service live beside the upstream settings for the same service.
type Config struct {
	Server          ServerConfig          `koanf:"server"`
	Cache           CacheConfig           `koanf:"cache"`
	AccessToken     AccessTokenConfig     `koanf:"accessToken"`
	Patient         PatientConfig         `koanf:"patient"`
	PersonalAccount PersonalAccountConfig `koanf:"personalAccount"`
	Communication   CommunicationConfig   `koanf:"communication"`
	ChangeFeed      ChangeFeedConfig      `koanf:"changeFeed"`
}

// ServerConfig collects the ops listener and logging knobs.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig selects the cache provider backend.
type CacheConfig struct {
	Backend string           `koanf:"backend"`
	Redis   RedisCacheConfig `koanf:"redis"`
}

type RedisCacheConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// AccessTokenConfig drives the PHSA token swap and whether swapped tokens
// are cached.
type AccessTokenConfig struct {
	TokenCacheEnabled bool   `koanf:"tokenCacheEnabled"`
	TokenSwapURL      string `koanf:"tokenSwapUrl"`
	ClientID          string `koanf:"clientId"`
	ClientSecret      string `koanf:"clientSecret"`
	GrantType         string `koanf:"grantType"`
	Scope             string `koanf:"scope"`
	TimeoutSeconds    int    `koanf:"timeoutSeconds"`
}

// PatientConfig controls the client registry lookup. CacheTTLMinutes of 0
// disables patient caching.
type PatientConfig struct {
	CacheTTLMinutes int    `koanf:"cacheTTLMinutes"`
	RegistryURL     string `koanf:"registryUrl"`
	TimeoutSeconds  int    `koanf:"timeoutSeconds"`
}

// PersonalAccountConfig controls the personal accounts lookup. CacheTTLMinutes
// of 0 disables caching.
type PersonalAccountConfig struct {
	CacheTTLMinutes int    `koanf:"cacheTTLMinutes"`
	BaseURL         string `koanf:"baseUrl"`
	TimeoutSeconds  int    `koanf:"timeoutSeconds"`
}

// CommunicationConfig points at the database holding communications.
type CommunicationConfig struct {
	DatabaseURL string `koanf:"databaseUrl"`
}

// ChangeFeedConfig chooses where communication change events come from.
type ChangeFeedConfig struct {
	Backend             string     `koanf:"backend"`
	Channel             string     `koanf:"channel"`
	MaxRetryAttempts    int        `koanf:"maxRetryAttempts"`
	SleepDurationMillis int        `koanf:"sleepDurationMillis"`
	NATS                NATSConfig `koanf:"nats"`
}

type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// SleepDuration returns the base reconnect delay.
func (c ChangeFeedConfig) SleepDuration() time.Duration {
	return time.Duration(c.SleepDurationMillis) * time.Millisecond
}

// Timeout converts a seconds knob into a duration, defaulting when unset.
func Timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Patient.CacheTTLMinutes < 0 {
		return fmt.Errorf("config: patient.cacheTTLMinutes invalid: %d", c.Patient.CacheTTLMinutes)
	}
	if c.PersonalAccount.CacheTTLMinutes < 0 {
		return fmt.Errorf("config: personalAccount.cacheTTLMinutes invalid: %d", c.PersonalAccount.CacheTTLMinutes)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Cache.Backend)
	}
	switch strings.TrimSpace(strings.ToLower(c.ChangeFeed.Backend)) {
	case "", "none":
	case "postgres":
		if strings.TrimSpace(c.Communication.DatabaseURL) == "" {
			return errors.New("config: communication.databaseUrl required for postgres change feed")
		}
		if strings.TrimSpace(c.ChangeFeed.Channel) == "" {
			return errors.New("config: changeFeed.channel required for postgres change feed")
		}
	case "nats":
		if strings.TrimSpace(c.ChangeFeed.NATS.URL) == "" || strings.TrimSpace(c.ChangeFeed.NATS.Subject) == "" {
			return errors.New("config: changeFeed.nats.url and changeFeed.nats.subject required for nats change feed")
		}
	default:
		return fmt.Errorf("config: changeFeed.backend unsupported: %s", c.ChangeFeed.Backend)
	}
	if c.ChangeFeed.MaxRetryAttempts < 0 {
		return fmt.Errorf("config: changeFeed.maxRetryAttempts invalid: %d", c.ChangeFeed.MaxRetryAttempts)
	}
	if c.ChangeFeed.SleepDurationMillis < 0 {
		return fmt.Errorf("config: changeFeed.sleepDurationMillis invalid: %d", c.ChangeFeed.SleepDurationMillis)
	}
	return nil
}

// DefaultConfig returns the baseline values. Every cache is off until a TTL
// is configured, except the token cache which follows the swap response.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		AccessToken: AccessTokenConfig{
			TokenCacheEnabled: true,
			GrantType:         "urn:ietf:params:oauth:grant-type:token-exchange",
			TimeoutSeconds:    30,
		},
		Patient: PatientConfig{
			TimeoutSeconds: 30,
		},
		PersonalAccount: PersonalAccountConfig{
			TimeoutSeconds: 30,
		},
		ChangeFeed: ChangeFeedConfig{
			Backend:             "none",
			Channel:             "BannerChange",
			MaxRetryAttempts:    5,
			SleepDurationMillis: 10000,
		},
	}
}
