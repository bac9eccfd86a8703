// Package settings implements the Settings & Validation component: a
// single typed configuration tree loaded from defaults, a TOML file, and
// AEP_-prefixed environment variables (env wins), with fatal aggregated
// validation before the rest of the process starts.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settings is the root configuration tree.
type Settings struct {
	Server        ServerConfig        `toml:"server"`
	Security      SecurityConfig      `toml:"security"`
	Memory        MemoryConfig        `toml:"memory"`
	Orchestrator  OrchestratorConfig  `toml:"orchestrator"`
	Plugins       PluginsConfig       `toml:"plugins"`
	Bridge        BridgeConfig        `toml:"bridge"`
	Logging       LoggingConfig       `toml:"logging"`
	Observability ObservabilityConfig `toml:"observability"`
}

type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MaxConnections int    `toml:"max_connections"`
}

type SecurityConfig struct {
	EnableAuthentication bool   `toml:"enable_authentication"`
	JWTSecret            string `toml:"jwt_secret"`
	MaxLoginAttempts     int    `toml:"max_login_attempts"`
	LockoutDurationMins  int    `toml:"lockout_duration_minutes"`
}

type MemoryConfig struct {
	Provider            string  `toml:"provider"`
	URL                 string  `toml:"url"`
	MaxFragments        int     `toml:"max_fragments"`
	EmbeddingDimensions int     `toml:"embedding_dimensions"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

type OrchestratorConfig struct {
	MaxConcurrentTasks int `toml:"max_concurrent_tasks"`
	TaskDeadlineSecs   int `toml:"task_deadline_seconds"`
}

type PluginsConfig struct {
	Directory            string   `toml:"directory"`
	RequireSignatures    bool     `toml:"require_signatures"`
	Allowlist            []string `toml:"allowlist"`
	MaxSizeBytes         int64    `toml:"max_size_bytes"`
	AllowBuiltinOverride bool     `toml:"allow_builtin_override"`
}

// BridgeConfig configures the Foreign-Runtime Bridge: the persistent
// interpreter subprocess, the compile-time function allowlist, and the
// script/module allowlist gating which modules the interpreter loads.
type BridgeConfig struct {
	Enabled          bool     `toml:"enabled"`
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	AllowedFunctions []string `toml:"allowed_functions"`
	ScriptDirectory  string   `toml:"script_directory"`
	ScriptAllowlist  []string `toml:"script_allowlist_hashes"`
	TimeoutSecs      int      `toml:"timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ObservabilityConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// weakSecrets is the hard-coded list of secrets rejected regardless of
// length.
var weakSecrets = map[string]bool{
	"changeme":                         true,
	"secret":                           true,
	"password":                         true,
	"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": true,
	"00000000000000000000000000000000": true,
}

// Default returns a Settings with every field set to its default value.
func Default() Settings {
	return Settings{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 256,
		},
		Security: SecurityConfig{
			EnableAuthentication: true,
			MaxLoginAttempts:     5,
			LockoutDurationMins:  15,
		},
		Memory: MemoryConfig{
			Provider:            "local",
			MaxFragments:        10000,
			EmbeddingDimensions: 384,
			SimilarityThreshold: 0.1,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks: 16,
			TaskDeadlineSecs:   30,
		},
		Plugins: PluginsConfig{
			Directory:         "plugins",
			RequireSignatures: true,
			MaxSizeBytes:      10 * 1024 * 1024,
		},
		Bridge: BridgeConfig{
			Enabled:     false,
			TimeoutSecs: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Enabled: true,
		},
	}
}

// Load reads settings following defaults -> TOML file -> environment
// variables, where each later source wins over the earlier ones.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("settings: read %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), &s); err != nil {
			return s, fmt.Errorf("settings: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&s)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnvOverrides applies the fixed set of AEP_SECTION__FIELD variables
// listed below to Settings.Section.Field. Fields not in the table have no
// environment override.
func applyEnvOverrides(s *Settings) {
	overrides := map[string]func(string){
		"AEP_SERVER__HOST":                       func(v string) { s.Server.Host = v },
		"AEP_SERVER__PORT":                       func(v string) { setInt(&s.Server.Port, v) },
		"AEP_SERVER__MAX_CONNECTIONS":            func(v string) { setInt(&s.Server.MaxConnections, v) },
		"AEP_SECURITY__ENABLE_AUTHENTICATION":    func(v string) { setBool(&s.Security.EnableAuthentication, v) },
		"AEP_SECURITY__JWT_SECRET":               func(v string) { s.Security.JWTSecret = v },
		"AEP_SECURITY__MAX_LOGIN_ATTEMPTS":       func(v string) { setInt(&s.Security.MaxLoginAttempts, v) },
		"AEP_SECURITY__LOCKOUT_DURATION_MINUTES": func(v string) { setInt(&s.Security.LockoutDurationMins, v) },
		"AEP_MEMORY__PROVIDER":                   func(v string) { s.Memory.Provider = v },
		"AEP_MEMORY__URL":                        func(v string) { s.Memory.URL = v },
		"AEP_PLUGINS__DIRECTORY":                 func(v string) { s.Plugins.Directory = v },
		"AEP_PLUGINS__REQUIRE_SIGNATURES":        func(v string) { setBool(&s.Plugins.RequireSignatures, v) },
		"AEP_PLUGINS__ALLOW_BUILTIN_OVERRIDE":    func(v string) { setBool(&s.Plugins.AllowBuiltinOverride, v) },
		"AEP_BRIDGE__ENABLED":                    func(v string) { setBool(&s.Bridge.Enabled, v) },
		"AEP_BRIDGE__COMMAND":                    func(v string) { s.Bridge.Command = v },
		"AEP_BRIDGE__SCRIPT_DIRECTORY":           func(v string) { s.Bridge.ScriptDirectory = v },
		"AEP_LOGGING__LEVEL":                     func(v string) { s.Logging.Level = v },
		"AEP_OBSERVABILITY__OTLP_ENDPOINT":       func(v string) { s.Observability.OTLPEndpoint = v },
	}
	for key, apply := range overrides {
		if v, ok := os.LookupEnv(key); ok {
			apply(v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		*dst = b
	}
}
