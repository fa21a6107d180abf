package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// Config holds service configuration. Values come from built-in defaults, then
// config/{ENV_NAME}.yaml, then a .env file, then the process environment; later
// sources win.
type Config struct {
	AppName  string `envconfig:"APP_NAME" validate:"required"`
	LogLevel string `envconfig:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN WARNING ERROR CRITICAL FATAL"`
	// LogFile is the rotating log file path. Empty disables file logging.
	LogFile string `envconfig:"LOG_FILE"`

	ServerPort      string        `envconfig:"SERVER_PORT" validate:"required,numeric"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	WeatherAPIKey     string        `envconfig:"OPENWEATHERMAP_API_KEY" validate:"required"`
	WeatherAPIURL     string        `envconfig:"WEATHER_API_URL" validate:"required,url"`
	WeatherAPITimeout time.Duration `envconfig:"WEATHER_API_TIMEOUT" validate:"gt=0"`

	AWSRegion       string `envconfig:"AWS_REGION" validate:"required"`
	S3Bucket        string `envconfig:"AWS_S3_BUCKET_NAME" validate:"required"`
	S3Endpoint      string `envconfig:"AWS_S3_ENDPOINT" validate:"omitempty,url"`
	S3StorageDomain string `envconfig:"AWS_S3_STORAGE_DOMAIN" validate:"required,hostname_port|hostname"`
	S3UsePathStyle  bool   `envconfig:"AWS_S3_USE_PATH_STYLE"`
	DynamoDBTable   string `envconfig:"DYNAMODB_TABLE_NAME" validate:"required"`

	EventLogBackend string `envconfig:"EVENT_LOG_BACKEND" validate:"oneof=dynamodb postgres sqlite"`
	EventLogDSN     string `envconfig:"EVENT_LOG_DSN" validate:"required_unless=EventLogBackend dynamodb"`

	CacheBackend          string        `envconfig:"CACHE_BACKEND" validate:"oneof=file memory memcached redis"`
	CacheDir              string        `envconfig:"CACHE_DIR" validate:"required_if=CacheBackend file"`
	CacheTTL              time.Duration `envconfig:"CACHE_TTL" validate:"gt=0"`
	MemcachedAddrs        string        `envconfig:"MEMCACHED_ADDRS" validate:"required_if=CacheBackend memcached"`
	MemcachedTimeout      time.Duration `envconfig:"MEMCACHED_TIMEOUT" validate:"gt=0"`
	MemcachedMaxIdleConns int           `envconfig:"MEMCACHED_MAX_IDLE_CONNS" validate:"gt=0"`
	RedisAddr             string        `envconfig:"REDIS_ADDR" validate:"required_if=CacheBackend redis"`
	RedisPassword         string        `envconfig:"REDIS_PASSWORD"`
	RedisDB               int           `envconfig:"REDIS_DB" validate:"gte=0"`

	RetryCount            int           `envconfig:"RETRY_COUNT" validate:"gte=0"`
	RetryBackoff          time.Duration `envconfig:"RETRY_BACKOFF" validate:"gte=0"`
	CircuitBreakerEnabled bool          `envconfig:"CIRCUIT_BREAKER_ENABLED"`
	// RateLimitRPS of 0 disables rate limiting.
	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`

	TrackedCities []string      `envconfig:"TRACKED_CITIES"`
	WarmInterval  time.Duration `envconfig:"WARM_INTERVAL" validate:"gte=0"`
}

// RetryPolicy returns the policy shared by every external call.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{Retries: c.RetryCount, Backoff: c.RetryBackoff}
}

func defaults() *Config {
	return &Config{
		AppName:               "Weather API Service",
		LogLevel:              "INFO",
		LogFile:               filepath.Join("logs", "app.log"),
		ServerPort:            "8080",
		RequestTimeout:        30 * time.Second,
		ShutdownTimeout:       30 * time.Second,
		WeatherAPIURL:         "http://api.openweathermap.org/data/2.5/weather",
		WeatherAPITimeout:     10 * time.Second,
		S3StorageDomain:       "s3.amazonaws.com",
		EventLogBackend:       "dynamodb",
		CacheBackend:          "file",
		CacheDir:              "cache",
		CacheTTL:              5 * time.Minute,
		MemcachedAddrs:        "localhost:11211",
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,
		RetryCount:            1,
		RetryBackoff:          time.Second,
	}
}

type fileConfig struct {
	AppName string `yaml:"app_name"`

	Log struct {
		Level string  `yaml:"level"`
		File  *string `yaml:"file"`
	} `yaml:"log"`

	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	AWS struct {
		Region string `yaml:"region"`
		S3     struct {
			Bucket        string `yaml:"bucket"`
			Endpoint      string `yaml:"endpoint"`
			StorageDomain string `yaml:"storage_domain"`
			UsePathStyle  *bool  `yaml:"use_path_style"`
		} `yaml:"s3"`
		DynamoDB struct {
			Table string `yaml:"table"`
		} `yaml:"dynamodb"`
	} `yaml:"aws"`

	EventLog struct {
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"event_log"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   *int   `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RetryCount            *int   `yaml:"retry_count"`
		RetryBackoff          string `yaml:"retry_backoff"`
		CircuitBreakerEnabled *bool  `yaml:"circuit_breaker_enabled"`
		RateLimitRPS          *int   `yaml:"rate_limit_rps"`
		RateLimitBurst        *int   `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Warming struct {
		TrackedCities []string `yaml:"tracked_cities"`
		Interval      string   `yaml:"interval"`
	} `yaml:"warming"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, apperrors.Configuration("load config", fmt.Errorf("get working directory: %w", err))
	}
	return LoadDir(cwd)
}

// LoadDir reads dir/config/{ENV_NAME}.yaml (default dev) and dir/.env, both
// optional, then overlays the environment and validates the result.
func LoadDir(dir string) (*Config, error) {
	cfg := defaults()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	if err := applyFile(cfg, filepath.Join(dir, "config", env+".yaml")); err != nil {
		return nil, apperrors.Configuration("load config", err)
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Configuration("load config", fmt.Errorf("read .env: %w", err))
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, apperrors.Configuration("load config", fmt.Errorf("process environment: %w", err))
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	cfg.EventLogBackend = strings.ToLower(strings.TrimSpace(cfg.EventLogBackend))

	if err := validate(cfg); err != nil {
		return nil, apperrors.Configuration("load config", err)
	}
	return cfg, nil
}

// applyFile overlays non-empty values from a YAML file. A missing file is not an error.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.AppName, fc.AppName)
	setString(&cfg.LogLevel, fc.Log.Level)
	if fc.Log.File != nil {
		cfg.LogFile = *fc.Log.File
	}

	setString(&cfg.ServerPort, fc.Server.Port)
	cfg.RequestTimeout = parseDurationOrZero(fc.Server.RequestTimeout, cfg.RequestTimeout)
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, cfg.ShutdownTimeout)

	setString(&cfg.WeatherAPIURL, fc.WeatherAPI.URL)
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, cfg.WeatherAPITimeout)

	setString(&cfg.AWSRegion, fc.AWS.Region)
	setString(&cfg.S3Bucket, fc.AWS.S3.Bucket)
	setString(&cfg.S3Endpoint, fc.AWS.S3.Endpoint)
	setString(&cfg.S3StorageDomain, fc.AWS.S3.StorageDomain)
	if fc.AWS.S3.UsePathStyle != nil {
		cfg.S3UsePathStyle = *fc.AWS.S3.UsePathStyle
	}
	setString(&cfg.DynamoDBTable, fc.AWS.DynamoDB.Table)

	setString(&cfg.EventLogBackend, fc.EventLog.Backend)
	setString(&cfg.EventLogDSN, fc.EventLog.DSN)

	setString(&cfg.CacheBackend, fc.Cache.Backend)
	setString(&cfg.CacheDir, fc.Cache.Dir)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, cfg.CacheTTL)
	setString(&cfg.MemcachedAddrs, fc.Cache.Memcached.Addrs)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, cfg.MemcachedTimeout)
	if fc.Cache.Memcached.MaxIdleConns > 0 {
		cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	}
	setString(&cfg.RedisAddr, fc.Cache.Redis.Addr)
	if fc.Cache.Redis.DB != nil {
		cfg.RedisDB = *fc.Cache.Redis.DB
	}

	if fc.Reliability.RetryCount != nil {
		cfg.RetryCount = *fc.Reliability.RetryCount
	}
	cfg.RetryBackoff = parseDurationOrZero(fc.Reliability.RetryBackoff, cfg.RetryBackoff)
	if fc.Reliability.CircuitBreakerEnabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreakerEnabled
	}
	if fc.Reliability.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.Reliability.RateLimitRPS
	}
	if fc.Reliability.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.Reliability.RateLimitBurst
	}

	if len(fc.Warming.TrackedCities) > 0 {
		cfg.TrackedCities = fc.Warming.TrackedCities
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, cfg.WarmInterval)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero is returned as-is so it can disable a feature.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

var validate = func() func(cfg *Config) error {
	v := validator.New()
	return func(cfg *Config) error {
		if err := v.Struct(cfg); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				return fieldErrors(verrs)
			}
			return err
		}
		return validateCrossFields(cfg)
	}
}()

// fieldErrors names the environment variable behind each failed field.
func fieldErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.StructField()
		if f, ok := configFieldEnv[name]; ok {
			name = f
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", name, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

var configFieldEnv = map[string]string{
	"AppName":               "APP_NAME",
	"LogLevel":              "LOG_LEVEL",
	"LogFile":               "LOG_FILE",
	"ServerPort":            "SERVER_PORT",
	"RequestTimeout":        "REQUEST_TIMEOUT",
	"ShutdownTimeout":       "SHUTDOWN_TIMEOUT",
	"WeatherAPIKey":         "OPENWEATHERMAP_API_KEY",
	"WeatherAPIURL":         "WEATHER_API_URL",
	"WeatherAPITimeout":     "WEATHER_API_TIMEOUT",
	"AWSRegion":             "AWS_REGION",
	"S3Bucket":              "AWS_S3_BUCKET_NAME",
	"S3Endpoint":            "AWS_S3_ENDPOINT",
	"S3StorageDomain":       "AWS_S3_STORAGE_DOMAIN",
	"S3UsePathStyle":        "AWS_S3_USE_PATH_STYLE",
	"DynamoDBTable":         "DYNAMODB_TABLE_NAME",
	"EventLogBackend":       "EVENT_LOG_BACKEND",
	"EventLogDSN":           "EVENT_LOG_DSN",
	"CacheBackend":          "CACHE_BACKEND",
	"CacheDir":              "CACHE_DIR",
	"CacheTTL":              "CACHE_TTL",
	"MemcachedAddrs":        "MEMCACHED_ADDRS",
	"MemcachedTimeout":      "MEMCACHED_TIMEOUT",
	"MemcachedMaxIdleConns": "MEMCACHED_MAX_IDLE_CONNS",
	"RedisAddr":             "REDIS_ADDR",
	"RedisPassword":         "REDIS_PASSWORD",
	"RedisDB":               "REDIS_DB",
	"RetryCount":            "RETRY_COUNT",
	"RetryBackoff":          "RETRY_BACKOFF",
	"CircuitBreakerEnabled": "CIRCUIT_BREAKER_ENABLED",
	"RateLimitRPS":          "RATE_LIMIT_RPS",
	"RateLimitBurst":        "RATE_LIMIT_BURST",
	"TrackedCities":         "TRACKED_CITIES",
	"WarmInterval":          "WARM_INTERVAL",
}

// validateCrossFields checks constraints the struct tags cannot express.
// RequestTimeout is raised if it would cut off a fully retried upstream call.
func validateCrossFields(cfg *Config) error {
	cities := cfg.TrackedCities[:0]
	for _, city := range cfg.TrackedCities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		if err := validation.ValidateCity(city); err != nil {
			return fmt.Errorf("TRACKED_CITIES: %w", err)
		}
		cities = append(cities, city)
	}
	cfg.TrackedCities = cities
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}
	minRequest := time.Duration(cfg.RetryCount+1)*cfg.WeatherAPITimeout + time.Duration(cfg.RetryCount)*cfg.RetryBackoff
	if cfg.RequestTimeout > 0 && cfg.RequestTimeout < minRequest {
		cfg.RequestTimeout = minRequest
	}
	return nil
}
