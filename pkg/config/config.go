package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Driver          string
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
	AutoMigrate     bool
}

// GetDSN returns the connection string. DATABASE_URL wins over the discrete
// DB_* settings; for sqlite it is the database file path.
func (c *DBConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == DriverSQLite {
		return c.DBName + ".db"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Env             string
	TrustProxy      bool
	ShutdownTimeout time.Duration
}

// PasswordConfig holds the password hashing parameters. They are fixed at
// rest: verification reads the parameters encoded in each stored hash.
type PasswordConfig struct {
	Hasher            string
	BcryptCost        int
	Argon2MemoryKB    uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
}

// Supported password hashers
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// JWTConfig holds configuration of the local token service, used when no
// external token service is configured.
type JWTConfig struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServicesConfig holds the addresses of the external services
type ServicesConfig struct {
	TokenServiceURL      string
	PredictionServiceURL string
	PredictionTimeout    time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	Password    PasswordConfig
	JWT         JWTConfig
	Services    ServicesConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

// Load loads configuration from the environment, reading a .env file first if one exists
func Load(serviceName string) (*Config, error) {
	// Not returning error as .env file is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Driver:          getEnv("DB_DRIVER", DriverPostgres),
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "crm"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "development"),
			TrustProxy:      getEnvAsBool("TRUST_PROXY", false),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Password: PasswordConfig{
			Hasher:            getEnv("PASSWORD_HASHER", HasherBcrypt),
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
			Argon2MemoryKB:    uint32(getEnvAsInt("ARGON2_MEMORY_KB", 64*1024)),
			Argon2Iterations:  uint32(getEnvAsInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(getEnvAsInt("ARGON2_PARALLELISM", 2)),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			AccessTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvAsDuration("JWT_REFRESH_TTL", 168*time.Hour),
		},
		Services: ServicesConfig{
			TokenServiceURL:      strings.TrimRight(getEnv("TOKEN_SERVICE_URL", ""), "/"),
			PredictionServiceURL: strings.TrimRight(getEnv("PREDICTION_SERVICE_URL", ""), "/"),
			PredictionTimeout:    getEnvAsDuration("PREDICTION_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "crm"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("config: DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}

	switch c.Password.Hasher {
	case HasherBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("config: BCRYPT_COST must be between 4 and 31")
		}
	case HasherArgon2id:
		if c.Password.Argon2MemoryKB == 0 || c.Password.Argon2Iterations == 0 || c.Password.Argon2Parallelism == 0 {
			return errors.New("config: ARGON2_MEMORY_KB, ARGON2_ITERATIONS and ARGON2_PARALLELISM must be positive")
		}
	default:
		return fmt.Errorf("config: PASSWORD_HASHER must be %q or %q, got %q", HasherBcrypt, HasherArgon2id, c.Password.Hasher)
	}

	if c.Services.TokenServiceURL == "" && c.JWT.SigningKey == "" {
		return errors.New("config: JWT_SIGNING_KEY must be set when TOKEN_SERVICE_URL is empty")
	}
	if c.Services.PredictionTimeout <= 0 {
		return errors.New("config: PREDICTION_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("trust_proxy", c.Server.TrustProxy),
		zap.String("password_hasher", c.Password.Hasher),
		zap.Bool("remote_token_service", c.Services.TokenServiceURL != ""),
		zap.String("prediction_service", c.Services.PredictionServiceURL),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
