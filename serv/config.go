package serv

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Configuration for the docq service
type Config struct {
	// Application name is used in log messages
	AppName string `mapstructure:"app_name"`

	// When enabled logs default to JSON and dev-only helpers are off
	Production bool `mapstructure:"production"`

	// The default path to find configuration, translation and query files
	ConfigPath string `mapstructure:"config_path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Logging Format: "auto" (colored console in dev, JSON in production),
	// "json" or "simple"
	LogFormat string `mapstructure:"log_format" validate:"oneof=auto json simple"`

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port" validate:"required,hostname_port"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Sets the API rate limits
	RateLimiter RateLimiter `mapstructure:"rate_limiter"`

	DB      Database      `mapstructure:"database"`
	Query   Query         `mapstructure:"query"`
	I18n    I18n          `mapstructure:"i18n"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	viper *viper.Viper
}

// Database configuration
type Database struct {
	// mongodb or memory
	Type       string `mapstructure:"type" validate:"oneof=mongodb memory"`
	ConnString string `mapstructure:"connection_string"`
	Host       string `mapstructure:"host"`
	Port       uint16 `mapstructure:"port"`
	DBName     string `mapstructure:"name" validate:"required"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`

	// Prepended to every collection name, used to keep tenants apart
	CollectionPrefix string `mapstructure:"collection_prefix"`

	// Number of pings attempted at startup before giving up
	ConnectRetries uint `mapstructure:"connect_retries" validate:"gte=1"`

	// Database ping timeout is used for db health checking
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

// Query compiler and executor settings
type Query struct {
	DefaultPageSize int64 `mapstructure:"default_page_size" validate:"gte=1"`
	MaxPageSize     int64 `mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`

	// Sort applied when a query has none, e.g. ["-created_at", "_id"]
	DefaultSort []string `mapstructure:"default_sort"`

	// Number of compiled queries kept in memory, 0 disables the cache
	CacheSize int `mapstructure:"cache_size" validate:"gte=0"`

	// Directory holding query files, relative to the config path
	Path string `mapstructure:"path"`
}

// I18n configures the translation table
type I18n struct {
	DefaultLanguage string `mapstructure:"default_language" validate:"required,bcp47_language_tag"`

	// Directory holding one <lang>.yaml file per language
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// RateLimiter sets the API rate limits
type RateLimiter struct {
	// The number of events per second
	Rate float64 `mapstructure:"rate"`

	// Bucket a burst of at most 'bucket' number of events
	Bucket int `mapstructure:"bucket"`
}

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable. This is the best way to create a new docq config.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesytem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}

		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}
	if c.ConfigPath == "" {
		c.ConfigPath = cp
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConfig function creates a new docq configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DB.Type == "mongodb" && c.DB.ConnString == "" && c.DB.Host == "" {
		return fmt.Errorf("invalid config: mongodb requires a connection string or host")
	}
	if _, err := c.SortFields(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// newViperWithDefaults returns a new viper instance with the default settings.
// Every key can be overridden by an environment variable with the DOCQ_
// prefix, e.g. DOCQ_DATABASE_HOST.
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("app_name", "docq")
	vi.SetDefault("host_port", "0.0.0.0:8080")

	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")

	// keys need a default for AutomaticEnv to pick up their env variable
	vi.SetDefault("database.type", "mongodb")
	vi.SetDefault("database.connection_string", "")
	vi.SetDefault("database.user", "")
	vi.SetDefault("database.password", "")
	vi.SetDefault("database.collection_prefix", "")
	vi.SetDefault("database.host", "localhost")
	vi.SetDefault("database.port", 27017)
	vi.SetDefault("database.name", "docq")
	vi.SetDefault("database.connect_retries", 10)
	vi.SetDefault("database.ping_timeout", "2s")

	vi.SetDefault("query.default_page_size", 20)
	vi.SetDefault("query.max_page_size", 100)
	vi.SetDefault("query.default_sort", []string{"_id"})
	vi.SetDefault("query.cache_size", 500)
	vi.SetDefault("query.path", "queries")

	vi.SetDefault("i18n.default_language", "en")
	vi.SetDefault("i18n.path", "i18n")

	vi.SetDefault("metrics.enable", true)

	vi.SetDefault("env", "development")
	vi.BindEnv("env", "GO_ENV")          //nolint:errcheck
	vi.BindEnv("host_port", "HOST_PORT") //nolint:errcheck

	vi.SetEnvPrefix("DOCQ")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// AbsolutePath returns the absolute path of the file
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// SortFields parses the default sort. A leading '-' sorts descending.
func (c *Config) SortFields() ([]core.SortField, error) {
	var out []core.SortField
	for _, s := range c.Query.DefaultSort {
		s = strings.TrimSpace(s)
		switch {
		case s == "" || s == "-":
			return nil, fmt.Errorf("empty default sort key")
		case strings.HasPrefix(s, "-"):
			out = append(out, core.Desc(s[1:]))
		default:
			out = append(out, core.Asc(strings.TrimPrefix(s, "+")))
		}
	}
	return out, nil
}

// MongoURI returns the connection string, built from the host settings when
// none is configured
func (c *Config) MongoURI() string {
	if c.DB.ConnString != "" {
		return c.DB.ConnString
	}
	port := c.DB.Port
	if port == 0 {
		port = 27017
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.DB.Host, strconv.Itoa(int(port))),
	}
	if c.DB.User != "" {
		u.User = url.UserPassword(c.DB.User, c.DB.Password)
	}
	return u.String()
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
// Returns true if log_format is "json" OR if log_format is "auto" and production mode is enabled.
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	if c.LogFormat == "auto" && c.Production {
		return true
	}
	return false
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
