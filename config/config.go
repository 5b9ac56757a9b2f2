package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ConfigEnv names the environment variable holding an optional TOML file.
const ConfigEnv = "AZZ_CONFIG"

// Config stores the application configuration.
// Values come from defaults, then an optional TOML file, then the environment.
type Config struct {
	// HTTP
	Host   string `toml:"host"`
	Port   string `toml:"port"`
	WebDir string `toml:"web_dir"` // 浏览器端静态文件目录，可为空

	// 数据库: mysql | sqlite | none
	DBDriver   string `toml:"db_driver"`
	DBHost     string `toml:"db_host"`
	DBPort     string `toml:"db_port"`
	DBUser     string `toml:"db_user"`
	DBPassword string `toml:"db_password"`
	DBName     string `toml:"db_name"`
	SQLitePath string `toml:"sqlite_path"`

	// Redis配置
	RedisEnabled  bool   `toml:"redis_enabled"`
	RedisHost     string `toml:"redis_host"`
	RedisPort     string `toml:"redis_port"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	CacheTTLHours int    `toml:"cache_ttl_hours"`

	// 视频存储: minio | local
	StorageDriver   string `toml:"storage_driver"`
	MinioEndpoint   string `toml:"minio_endpoint"`
	MinioAccessKey  string `toml:"minio_access_key"`
	MinioSecretKey  string `toml:"minio_secret_key"`
	MinioUseSSL     bool   `toml:"minio_use_ssl"`
	MinioRegion     string `toml:"minio_region"`
	MinioBucket     string `toml:"minio_bucket"`
	LocalStorageDir string `toml:"local_storage_dir"`

	// Gemini
	GeminiAPIKey        string `toml:"gemini_api_key"`
	GeminiModel         string `toml:"gemini_model"`
	GeminiBaseURL       string `toml:"gemini_base_url"`
	GeminiInlineLimitMB int    `toml:"gemini_inline_limit_mb"`
	ProcessTimeoutSec   int    `toml:"process_timeout_sec"`

	// 会话令牌
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`

	// 界面提示文案
	ReadFailureMessage string `toml:"read_failure_message"`
	AIFailureMessage   string `toml:"ai_failure_message"`

	// 日志
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// watch 命令
	InboxDir         string `toml:"inbox_dir"`
	InboxOutputDir   string `toml:"inbox_output_dir"`
	InboxConcurrency int    `toml:"inbox_concurrency"`
	MaxUploadMB      int    `toml:"max_upload_mb"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:   "0.0.0.0",
		Port:   "8080",
		WebDir: "",

		DBDriver:   "sqlite",
		DBHost:     "127.0.0.1",
		DBPort:     "3306",
		DBUser:     "root",
		DBName:     "azzkaraoke",
		SQLitePath: filepath.Join("data", "azzkaraoke.db"),

		RedisEnabled:  true,
		RedisHost:     "127.0.0.1",
		RedisPort:     "6379",
		RedisDB:       0,
		CacheTTLHours: 24 * 7,

		StorageDriver:   "local",
		MinioRegion:     "us-east-1",
		MinioBucket:     "azzkaraoke",
		LocalStorageDir: filepath.Join("data", "videos"),

		GeminiModel:         "gemini-3-flash-preview",
		GeminiInlineLimitMB: 20,
		ProcessTimeoutSec:   600,

		TokenTTLHours: 24,

		LogLevel: "info",

		InboxDir:         "inbox",
		InboxOutputDir:   "exports",
		InboxConcurrency: 2,
		MaxUploadMB:      512,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load builds the configuration. path may name a TOML file; when empty the
// AZZ_CONFIG variable is consulted. A .env file in the working directory is
// loaded first and never overrides variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.WebDir = getEnv("WEB_DIR", c.WebDir)

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)

	c.RedisEnabled = getEnvBool("REDIS_ENABLED", c.RedisEnabled)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.CacheTTLHours = getEnvInt("CACHE_TTL_HOURS", c.CacheTTLHours)

	c.StorageDriver = getEnv("STORAGE_DRIVER", c.StorageDriver)
	c.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioUseSSL = getEnvBool("MINIO_USE_SSL", c.MinioUseSSL)
	c.MinioRegion = getEnv("MINIO_REGION", c.MinioRegion)
	c.MinioBucket = getEnv("MINIO_BUCKET", c.MinioBucket)
	c.LocalStorageDir = getEnv("LOCAL_STORAGE_DIR", c.LocalStorageDir)

	// 同时接受 API_KEY
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.GeminiAPIKey))
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiBaseURL = getEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.GeminiInlineLimitMB = getEnvInt("GEMINI_INLINE_LIMIT_MB", c.GeminiInlineLimitMB)
	c.ProcessTimeoutSec = getEnvInt("PROCESS_TIMEOUT_SEC", c.ProcessTimeoutSec)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.TokenTTLHours = getEnvInt("TOKEN_TTL_HOURS", c.TokenTTLHours)

	c.ReadFailureMessage = getEnv("READ_FAILURE_MESSAGE", c.ReadFailureMessage)
	c.AIFailureMessage = getEnv("AI_FAILURE_MESSAGE", c.AIFailureMessage)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	c.InboxDir = getEnv("INBOX_DIR", c.InboxDir)
	c.InboxOutputDir = getEnv("INBOX_OUTPUT_DIR", c.InboxOutputDir)
	c.InboxConcurrency = getEnvInt("INBOX_CONCURRENCY", c.InboxConcurrency)
	c.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", c.MaxUploadMB)
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	if c.InboxConcurrency < 1 {
		c.InboxConcurrency = 1
	}
}

// Validate reports settings that can never work.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "mysql", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("db_driver must be mysql, sqlite or none, got %q", c.DBDriver))
	}
	switch c.StorageDriver {
	case "minio":
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("minio_endpoint is required when storage_driver is minio"))
		}
	case "local":
	default:
		errs = append(errs, fmt.Errorf("storage_driver must be minio or local, got %q", c.StorageDriver))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port must be numeric, got %q", c.Port))
	}
	return errors.Join(errs...)
}

// RequireGemini reports a missing API key for commands that call the AI.
func (c *Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY (or API_KEY) is not set")
	}
	return nil
}

// RequireJWT reports a missing token secret for the server.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// CacheTTL is how long processed metadata stays cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// TokenTTL is the lifetime of a session token.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// ProcessTimeout bounds one read + AI round trip. Zero disables the limit.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.ProcessTimeoutSec) * time.Second
}

// InlineLimit is the largest video, in bytes, sent inline to Gemini.
func (c *Config) InlineLimit() int64 {
	return int64(c.GeminiInlineLimitMB) << 20
}

// MaxUploadBytes caps an uploaded video.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
