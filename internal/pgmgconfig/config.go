// Package pgmgconfig loads pgmg.toml and merges it with command-line flags
// via spf13/viper, the way xataio-pgroll's cmd/flags package binds cobra
// flags into a single lookup surface. A Config is a plain value once
// loaded; nothing in this package keeps a live reference to viper's global
// state beyond the Load call itself.
package pgmgconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/spf13/viper"
)

// TLSConfig mirrors the original Rust implementation's TlsConfigSection:
// an optional CA certificate and client-certificate pair. The section is
// read from pgmg.toml into Config.TLS, but pkg/pgmg does not pass it to the
// connection: TargetFromConfig ignores it and connections use
// sslmode=disable.
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CACert     string `mapstructure:"ca_cert"`
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
}

// Config is pgmg's full runtime configuration: connection target,
// directory layout, and the knobs governing locking and test mode.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	MigrationsDir string `mapstructure:"migrations_dir"`
	CodeDir       string `mapstructure:"code_dir"`

	LockTimeoutSeconds int  `mapstructure:"lock_timeout_seconds"`
	TestMode           bool `mapstructure:"test_mode"`

	CheckFunction string `mapstructure:"check_function"`

	TLS TLSConfig `mapstructure:"tls"`
}

// Default returns the Config values used for any field that neither
// pgmg.toml nor a command-line flag sets.
func Default() Config {
	return Config{
		Host:               "localhost",
		Port:               5432,
		Database:           "postgres",
		User:               "postgres",
		MigrationsDir:      "migrations",
		CodeDir:            "schema",
		LockTimeoutSeconds: 30,
	}
}

// Load reads pgmg.toml at path (if it exists — a missing file is not an
// error, since every field has a usable default) and overlays any value
// already bound into v (typically cobra flags bound with viper.BindPFlag).
func Load(path string, v *viper.Viper) (Config, error) {
	cfg := Default()
	// Registered as viper defaults so that an unset flag's own empty default
	// does not override them when v is unmarshalled.
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("user", cfg.User)
	v.SetDefault("migrations_dir", cfg.MigrationsDir)
	v.SetDefault("code_dir", cfg.CodeDir)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return cfg, fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LockTimeout returns the configured advisory lock timeout as a duration.
func (c Config) LockTimeout() time.Duration {
	if c.LockTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// Fingerprint returns a structural hash of the whole config; two configs
// with identical field values hash the same.
func (c Config) Fingerprint() (uint64, error) {
	return hashstructure.Hash(c, hashstructure.FormatV2, nil)
}

const sampleConfig = `# pgmg.toml — sample configuration. Uncomment and edit as needed.

host = "localhost"
port = 5432
database = "postgres"
user = "postgres"
# password = ""

migrations_dir = "migrations"
code_dir = "schema"

lock_timeout_seconds = 30
test_mode = false

# check_function = "pgmg_policy.check"

[tls]
enabled = false
# ca_cert = "/path/to/ca.pem"
# client_cert = "/path/to/client-cert.pem"
# client_key = "/path/to/client-key.pem"
`

// WriteSample writes a commented pgmg.toml template to path, for
// `pgmg config init`, mirroring the original implementation's
// PgmgConfig::write_sample_config.
func WriteSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
