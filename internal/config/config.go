// Package config loads the application configuration from a yaml file
// and the environment. The storage section selects the backend family
// and carries its family-specific settings; the storage factory
// validates those eagerly at Initialize.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Backend family values recognized by the storage factory.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// PostgresConfig configures the self-hosted relational backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	// Debug echoes executed statements through the application logger.
	Debug bool `mapstructure:"debug"`
}

// SupabaseConfig configures the hosted REST-backed backend.
type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	AnonKey        string `mapstructure:"anon_key"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig selects the backend family and its settings.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
}

// Config holds the configuration for the application.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Storage     StorageConfig `mapstructure:"storage"`
	Server      struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Auth struct {
		Issuer       string `mapstructure:"issuer"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
		DevBypass    bool   `mapstructure:"dev_bypass"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
// When path is non-empty it names the config file explicitly; otherwise
// config.yaml is searched in the working directory and ./config.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvPrefix("codeweave")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)

	if config.Server.Address == "" {
		config.Server.Address = ":8080"
		if config.TLS.Enable {
			config.Server.Address = ":8443"
		}
	}

	return &config, nil
}

// normalizeIssuer ensures the OIDC issuer URL is in a predictable form.
// It strips the trailing slash so users can paste the value straight
// from their identity provider's admin console.
func normalizeIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
