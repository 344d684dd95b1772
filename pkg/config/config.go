// Package config loads the authz-server configuration from a YAML file,
// AUTHZ_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/authz/sentry"
	"github.com/kylo-io/hadoop-authz/pkg/ledger"
)

// EnvPrefix prefixes every environment override. Nested keys use
// underscores, e.g. AUTHZ_SENTRY_DATASOURCE.
const EnvPrefix = "AUTHZ"

// Auth modes.
const (
	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

// Config is the full server configuration.
type Config struct {
	Listen  string `mapstructure:"listen"`
	Backend string `mapstructure:"backend"`
	// AdminGroups may call the mutating routes. Empty allows everyone.
	AdminGroups []string `mapstructure:"adminGroups"`
	CORSOrigins []string `mapstructure:"corsOrigins"`

	Sentry  SentryConfig  `mapstructure:"sentry"`
	Hadoop  HadoopConfig  `mapstructure:"hadoop"`
	Ledger  ledger.Config `mapstructure:"ledger"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// SentryConfig selects the Sentry connection and reconcile behaviour.
type SentryConfig struct {
	DriverName     string   `mapstructure:"driverName"`
	DataSource     string   `mapstructure:"dataSource"`
	Groups         []string `mapstructure:"groups"`
	UpdateStrategy string   `mapstructure:"updateStrategy"`
}

// HadoopConfig locates the cluster configuration and the WebHDFS endpoint.
type HadoopConfig struct {
	ConfDir    string `mapstructure:"confDir"`
	WebHDFSURL string `mapstructure:"webhdfsURL"`
	User       string `mapstructure:"user"`
	Recursive  bool   `mapstructure:"recursive"`
}

type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector address. Empty disables tracing.
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"serviceName"`
}

// AuthConfig selects how the caller identity is extracted.
type AuthConfig struct {
	Mode string    `mapstructure:"mode"`
	JWT  JWTConfig `mapstructure:"jwt"`
}

type JWTConfig struct {
	UserClaim     string `mapstructure:"userClaim"`
	GroupsClaim   string `mapstructure:"groupsClaim"`
	PublicKeyPath string `mapstructure:"publicKeyPath"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("backend", "none")
	v.SetDefault("adminGroups", []string{})
	v.SetDefault("corsOrigins", []string{"https://*", "http://*"})

	v.SetDefault("sentry.driverName", "hive")
	v.SetDefault("sentry.dataSource", "")
	v.SetDefault("sentry.groups", []string{})
	v.SetDefault("sentry.updateStrategy", string(sentry.StrategyReplace))

	v.SetDefault("hadoop.confDir", "/etc/hadoop/conf")
	v.SetDefault("hadoop.webhdfsURL", "")
	v.SetDefault("hadoop.user", "")
	v.SetDefault("hadoop.recursive", false)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.type", ledger.TypeSQLite)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.retentionDays", 90)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.serviceName", "authz-server")

	v.SetDefault("auth.mode", AuthModeHeader)
	v.SetDefault("auth.jwt.userClaim", "sub")
	v.SetDefault("auth.jwt.groupsClaim", "groups")
	v.SetDefault("auth.jwt.publicKeyPath", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")
}

// BindFlags registers the flags that override configuration keys.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("backend", "none", "Authorization backend (none or sentry)")
	flags.String("ledger-type", ledger.TypeSQLite, "Policy ledger database type (sqlite, postgres or mysql)")
	flags.String("ledger-dsn", "", "Policy ledger connection string")
}

var flagKeys = map[string]string{
	"listen":      "listen",
	"backend":     "backend",
	"ledger-type": "ledger.type",
	"ledger-dsn":  "ledger.dsn",
}

// Load reads the configuration. Precedence, highest first: flags that were
// set explicitly, AUTHZ_* environment, the file named by --config, defaults.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var path string
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		path, _ = flags.GetString("config")
	}
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting that can be checked without connecting to
// anything.
func (c *Config) Validate() error {
	var errs []error

	backend, err := authz.ParseType(c.Backend)
	if err != nil {
		errs = append(errs, err)
	}
	if backend == authz.TypeSentry {
		if c.Sentry.DataSource == "" {
			errs = append(errs, errors.New("sentry.dataSource is required when backend is sentry"))
		}
		strategy, err := sentry.ParseUpdateStrategy(c.Sentry.UpdateStrategy)
		if err != nil {
			errs = append(errs, err)
		}
		if strategy == sentry.StrategyDiff && !c.Ledger.Enabled {
			errs = append(errs, errors.New("sentry.updateStrategy diff requires ledger.enabled"))
		}
	}
	if c.Hadoop.WebHDFSURL != "" {
		if u, err := url.Parse(c.Hadoop.WebHDFSURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid hadoop.webhdfsURL %q", c.Hadoop.WebHDFSURL))
		}
	}

	if c.Ledger.Enabled {
		if _, err := ledger.Dialector(c.Ledger.Type, c.Ledger.DSN); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Ledger.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("ledger.retentionDays must not be negative (got %d)", c.Ledger.RetentionDays))
	}

	switch c.Auth.Mode {
	case "", AuthModeHeader, AuthModeJWT:
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q (expected header or jwt)", c.Auth.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// BackendType returns the parsed backend. Call after Validate.
func (c *Config) BackendType() authz.Type {
	t, _ := authz.ParseType(c.Backend)
	return t
}
