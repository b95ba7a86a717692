// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/atrium-host/atrium/pkg/types"
	"github.com/spf13/viper"
)

// Config is the top-level Atrium configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	SafeMode    bool             `mapstructure:"safe_mode"`
	Server      ServerConfig     `mapstructure:"server"`
	Plugins     PluginsConfig    `mapstructure:"plugins"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Navigation  NavigationConfig `mapstructure:"navigation"`
	Deployment  DeploymentConfig `mapstructure:"deployment"`
}

// ServerConfig controls how Atrium listens for connections.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// PluginsConfig controls plugin manifest discovery.
type PluginsConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig selects the backend and its on-disk location.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// NavigationConfig bounds the boot-time navigation validation matrix.
type NavigationConfig struct {
	MatrixLimit int `mapstructure:"matrix_limit"`
}

// DeploymentConfig describes which backing services this deployment has,
// and which enterprise features are licensed. Capability decisions for
// tier-C plugins consult these values.
type DeploymentConfig struct {
	NotificationTransport string   `mapstructure:"notification_transport"`
	EnterpriseFeatures    []string `mapstructure:"enterprise_features"`
}

// Load builds the runtime configuration: compiled defaults, overridden
// by ATRIUM_ environment variables, overridden by the optional YAML file
// at path. The result is validated as a whole before being returned.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("safe_mode", false)
	v.SetDefault("server.listen", "127.0.0.1:8180")
	v.SetDefault("plugins.dir", "./plugins")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("navigation.matrix_limit", 512)
	v.SetDefault("deployment.notification_transport", "log")

	v.SetEnvPrefix("ATRIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, atriumerr.Errorf(atriumerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, atriumerr.Errorf(atriumerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Env returns the parsed environment. Only meaningful after Validate.
func (c *Config) Env() types.Environment {
	return types.Environment(strings.ToLower(c.Environment))
}

// Validate checks every section and returns the full list of
// violations, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateEnvironment()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validatePlugins()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateNavigation()...)
	errs = append(errs, c.validateDeployment()...)

	return errs
}

func (c *Config) validateEnvironment() []error {
	if _, err := types.ParseEnvironment(c.Environment); err != nil {
		return []error{atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: environment must be one of [production, development, test], got %q",
			c.Environment)}
	}
	return nil
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else if err := validateListen(c.Server.Listen); err != nil {
		errs = append(errs, err)
	}

	for i, origin := range c.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
				"config: server.cors_origins[%d] must not be empty", i))
		}
	}

	return errs
}

// validateListen checks a host:port string. An empty host (":8080") is
// legal; the port must be numeric and in range.
func validateListen(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr)
	}
	if port < 1 || port > 65535 {
		return atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func (c *Config) validatePlugins() []error {
	if strings.TrimSpace(c.Plugins.Dir) == "" {
		return []error{atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue, "config: plugins.dir must not be empty")}
	}
	return nil
}

func (c *Config) validateStorage() []error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
		return nil
	default:
		return []error{atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend)}
	}
}

func (c *Config) validateNavigation() []error {
	if c.Navigation.MatrixLimit <= 0 {
		return []error{atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: navigation.matrix_limit must be greater than 0, got %d",
			c.Navigation.MatrixLimit)}
	}
	return nil
}

func (c *Config) validateDeployment() []error {
	var errs []error

	switch c.Deployment.NotificationTransport {
	case "", "log", "webhook":
	default:
		errs = append(errs, atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"config: deployment.notification_transport must be one of [log, webhook] or empty, got %q",
			c.Deployment.NotificationTransport))
	}

	for i, feature := range c.Deployment.EnterpriseFeatures {
		if strings.TrimSpace(feature) == "" {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
				"config: deployment.enterprise_features[%d] must not be empty", i))
		}
	}

	return errs
}
