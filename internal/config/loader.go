package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Files returns the non-empty configuration files this loader reads.
func (l *Loader) Files() []string {
	out := make([]string, 0, len(l.files))
	for _, path := range l.files {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.Files() {
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// canonicalEnvKeys restores camelCase segments that env variables cannot carry.
var canonicalEnvKeys = map[string]string{
	"cache.redis.tls.cafile":          "cache.redis.tls.caFile",
	"accesstoken.tokencacheenabled":   "accessToken.tokenCacheEnabled",
	"accesstoken.tokenswapurl":        "accessToken.tokenSwapUrl",
	"accesstoken.clientid":            "accessToken.clientId",
	"accesstoken.clientsecret":        "accessToken.clientSecret",
	"accesstoken.granttype":           "accessToken.grantType",
	"accesstoken.scope":               "accessToken.scope",
	"accesstoken.timeoutseconds":      "accessToken.timeoutSeconds",
	"patient.cachettlminutes":         "patient.cacheTTLMinutes",
	"patient.registryurl":             "patient.registryUrl",
	"patient.timeoutseconds":          "patient.timeoutSeconds",
	"personalaccount.cachettlminutes": "personalAccount.cacheTTLMinutes",
	"personalaccount.baseurl":         "personalAccount.baseUrl",
	"personalaccount.timeoutseconds":  "personalAccount.timeoutSeconds",
	"communication.databaseurl":       "communication.databaseUrl",
	"changefeed.backend":              "changeFeed.backend",
	"changefeed.channel":              "changeFeed.channel",
	"changefeed.maxretryattempts":     "changeFeed.maxRetryAttempts",
	"changefeed.sleepdurationmillis":  "changeFeed.sleepDurationMillis",
	"changefeed.nats.url":             "changeFeed.nats.url",
	"changefeed.nats.subject":         "changeFeed.nats.subject",
}

func (l *Loader) envKey(s string) string {
	// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
	key := strings.TrimPrefix(s, l.envPrefix+"_")
	key = strings.ReplaceAll(key, "__", ".")
	lower := strings.ToLower(key)
	if mapped, ok := canonicalEnvKeys[strings.ReplaceAll(lower, "_", "")]; ok {
		return mapped
	}
	key = strings.ReplaceAll(key, "_", "")
	return strings.ToLower(key)
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %s", ext)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
		},
		"cache": map[string]any{
			"backend": cfg.Cache.Backend,
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Redis.TLS.Enabled,
					"caFile":  cfg.Cache.Redis.TLS.CAFile,
				},
			},
		},
		"accessToken": map[string]any{
			"tokenCacheEnabled": cfg.AccessToken.TokenCacheEnabled,
			"tokenSwapUrl":      cfg.AccessToken.TokenSwapURL,
			"clientId":          cfg.AccessToken.ClientID,
			"clientSecret":      cfg.AccessToken.ClientSecret,
			"grantType":         cfg.AccessToken.GrantType,
			"scope":             cfg.AccessToken.Scope,
			"timeoutSeconds":    cfg.AccessToken.TimeoutSeconds,
		},
		"patient": map[string]any{
			"cacheTTLMinutes": cfg.Patient.CacheTTLMinutes,
			"registryUrl":     cfg.Patient.RegistryURL,
			"timeoutSeconds":  cfg.Patient.TimeoutSeconds,
		},
		"personalAccount": map[string]any{
			"cacheTTLMinutes": cfg.PersonalAccount.CacheTTLMinutes,
			"baseUrl":         cfg.PersonalAccount.BaseURL,
			"timeoutSeconds":  cfg.PersonalAccount.TimeoutSeconds,
		},
		"communication": map[string]any{
			"databaseUrl": cfg.Communication.DatabaseURL,
		},
		"changeFeed": map[string]any{
			"backend":             cfg.ChangeFeed.Backend,
			"channel":             cfg.ChangeFeed.Channel,
			"maxRetryAttempts":    cfg.ChangeFeed.MaxRetryAttempts,
			"sleepDurationMillis": cfg.ChangeFeed.SleepDurationMillis,
			"nats": map[string]any{
				"url":     cfg.ChangeFeed.NATS.URL,
				"subject": cfg.ChangeFeed.NATS.Subject,
			},
		},
	}
}
