package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeProduction  = "PRODUCTION"
	ModeDevelopment = "DEVELOPMENT"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration, sourced from the environment and an
// optional YAML file.
type Config struct {
	ServerHost    string
	ServerPort    int
	ExecutionMode string
	AllowOrigins  []string
	Log           Log
	DB            Database
	CatAPI        CatAPI
}

type Log struct {
	Level  string
	Format string
}

type Database struct {
	Driver string
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string

	User     string
	Password string
	Host     string
	Port     string
	Name     string

	PoolSize    int
	MaxOverflow int
	PoolRecycle time.Duration
}

type CatAPI struct {
	BreedURL      string
	CacheTTL      time.Duration
	FetchAttempts int
	FetchTimeout  time.Duration
}

// IsProduction reports whether interactive API docs must be hidden.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.ExecutionMode, ModeProduction)
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// URL builds the PostgreSQL connection string.
func (d Database) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SetDefaults registers defaults for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "127.0.0.1")
	v.SetDefault("server_port", 8000)
	v.SetDefault("execution_mode", ModeDevelopment)
	v.SetDefault("allow_origins", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "spycat.db")
	v.SetDefault("postgres_user", "")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_db", "")
	v.SetDefault("pool_size", 50)
	v.SetDefault("max_overflow", 10)
	v.SetDefault("pool_recycle", 1800)
	v.SetDefault("cat_api_breed_url", "https://api.thecatapi.com/v1/breeds")
	v.SetDefault("breed_cache_ttl", "1h")
	v.SetDefault("breed_fetch_attempts", 3)
	v.SetDefault("breed_fetch_timeout", "10s")
}

// New returns a viper instance reading environment variables (SERVER_PORT,
// POSTGRES_HOST, ...) and, when path is set, a YAML file with the same keys
// in lower case.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads and validates config from v.
func Load(v *viper.Viper) (Config, error) {
	ttl, err := parseDuration(v.GetString("breed_cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("BREED_CACHE_TTL: %w", err)
	}
	timeout, err := parseDuration(v.GetString("breed_fetch_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("BREED_FETCH_TIMEOUT: %w", err)
	}
	cfg := Config{
		ServerHost:    v.GetString("server_host"),
		ServerPort:    v.GetInt("server_port"),
		ExecutionMode: strings.ToUpper(v.GetString("execution_mode")),
		AllowOrigins:  splitList(v.GetString("allow_origins")),
		Log: Log{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		DB: Database{
			Driver:      strings.ToLower(v.GetString("db_driver")),
			SQLitePath:  v.GetString("sqlite_path"),
			User:        v.GetString("postgres_user"),
			Password:    v.GetString("postgres_password"),
			Host:        v.GetString("postgres_host"),
			Port:        v.GetString("postgres_port"),
			Name:        v.GetString("postgres_db"),
			PoolSize:    v.GetInt("pool_size"),
			MaxOverflow: v.GetInt("max_overflow"),
			PoolRecycle: time.Duration(v.GetInt("pool_recycle")) * time.Second,
		},
		CatAPI: CatAPI{
			BreedURL:      v.GetString("cat_api_breed_url"),
			CacheTTL:      ttl,
			FetchAttempts: v.GetInt("breed_fetch_attempts"),
			FetchTimeout:  timeout,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	switch c.ExecutionMode {
	case ModeProduction, ModeDevelopment:
	default:
		return fmt.Errorf("EXECUTION_MODE must be PRODUCTION or DEVELOPMENT, got %q", c.ExecutionMode)
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.User == "" || c.DB.Host == "" || c.DB.Name == "" {
			return fmt.Errorf("POSTGRES_USER, POSTGRES_HOST and POSTGRES_DB are required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.PoolSize < 1 {
		return fmt.Errorf("POOL_SIZE must be positive")
	}
	if c.DB.MaxOverflow < 0 {
		return fmt.Errorf("MAX_OVERFLOW must not be negative")
	}
	if c.CatAPI.BreedURL == "" {
		return fmt.Errorf("CAT_API_BREED_URL is required")
	}
	if c.CatAPI.FetchAttempts < 1 {
		return fmt.Errorf("BREED_FETCH_ATTEMPTS must be at least 1")
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
