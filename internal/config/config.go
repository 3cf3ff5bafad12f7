package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Recruiter RecruiterConfig `mapstructure:"recruiter"`
	Mail      MailConfig      `mapstructure:"mail"`
	Clamd     ClamdConfig     `mapstructure:"clamd"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	SiteURL        string `mapstructure:"site_url"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins splits the comma separated CORS origin list.
func (a APIConfig) Origins() []string {
	return splitList(a.AllowedOrigins)
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	PublicEndpoint   string        `mapstructure:"public_endpoint"`
	AccessKeyID      string        `mapstructure:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key"`
	UseSSL           bool          `mapstructure:"use_ssl"`
	Region           string        `mapstructure:"region"`
	BucketLookup     string        `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool          `mapstructure:"auto_create_bucket"`
	Buckets          BucketsConfig `mapstructure:"buckets"`
}

// BucketsConfig maps the logical buckets used by the application to real bucket names.
type BucketsConfig struct {
	CompanyVerifications string `mapstructure:"company_verifications"`
	CVUploads            string `mapstructure:"cv_uploads"`
	CVPublic             string `mapstructure:"cv_public"`
	Logos                string `mapstructure:"logos"`
	VideoJob             string `mapstructure:"video_job"`
}

// AuthConfig 包含 JWT 密钥与令牌有效期。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// RateLimitConfig selects the limiter backend shared by sensitive routes.
type RateLimitConfig struct {
	Backend string `mapstructure:"backend"`
}

// RecruiterConfig drives the recruiter onboarding variant.
type RecruiterConfig struct {
	// ApprovalMode is "admin" (SIREN document + admin review) or "email" (confirmation link).
	ApprovalMode    string        `mapstructure:"approval_mode"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
}

// MailConfig contains Mailjet credentials and the sender identity.
type MailConfig struct {
	APIKeyPublic  string `mapstructure:"api_key_public"`
	APIKeyPrivate string `mapstructure:"api_key_private"`
	FromEmail     string `mapstructure:"from_email"`
	FromName      string `mapstructure:"from_name"`
}

// Enabled reports whether outbound mail is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.APIKeyPublic) != "" && strings.TrimSpace(m.APIKeyPrivate) != ""
}

// ClamdConfig points at an optional clamd daemon. Empty address disables scanning.
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkerConfig 控制 asynq worker 并发与指标端口。
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MetricsPort int `mapstructure:"metrics_port"`
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"

	ApprovalModeAdmin = "admin"
	ApprovalModeEmail = "email"
)

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.site_url", "http://localhost:3000")
	v.SetDefault("api.allowed_origins", "http://localhost:3000")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ctonjob")
	v.SetDefault("database.user", "ctonjob")
	v.SetDefault("database.password", "ctonjob")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.buckets.company_verifications", "company-verifications")
	v.SetDefault("minio.buckets.cv_uploads", "cv-uploads")
	v.SetDefault("minio.buckets.cv_public", "cv-public")
	v.SetDefault("minio.buckets.logos", "logos")
	v.SetDefault("minio.buckets.video_job", "video-job")
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("ratelimit.backend", RateLimitBackendMemory)
	v.SetDefault("recruiter.approval_mode", ApprovalModeAdmin)
	v.SetDefault("recruiter.confirmation_ttl", 48*time.Hour)
	v.SetDefault("mail.from_email", "no-reply@ctonjob.fr")
	v.SetDefault("mail.from_name", "Ctonjob")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                            "API_PORT",
		"api.site_url":                        "SITE_URL",
		"api.allowed_origins":                 "CORS_ALLOWED_ORIGINS",
		"database.host":                       "DATABASE_HOST",
		"database.port":                       "DATABASE_PORT",
		"database.name":                       "POSTGRES_DB",
		"database.user":                       "POSTGRES_USER",
		"database.password":                   "POSTGRES_PASSWORD",
		"database.sslmode":                    "DATABASE_SSLMODE",
		"redis.host":                          "REDIS_HOST",
		"redis.port":                          "REDIS_PORT",
		"redis.password":                      "REDIS_PASSWORD",
		"redis.db":                            "REDIS_DB",
		"minio.endpoint":                      "MINIO_ENDPOINT",
		"minio.public_endpoint":               "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":                 "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":             "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                       "MINIO_USE_SSL",
		"minio.region":                        "MINIO_REGION",
		"minio.bucket_lookup":                 "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":            "MINIO_AUTO_CREATE_BUCKET",
		"minio.buckets.company_verifications": "MINIO_BUCKET_COMPANY_VERIFICATIONS",
		"minio.buckets.cv_uploads":            "MINIO_BUCKET_CV_UPLOADS",
		"minio.buckets.cv_public":             "MINIO_BUCKET_CV_PUBLIC",
		"minio.buckets.logos":                 "MINIO_BUCKET_LOGOS",
		"minio.buckets.video_job":             "MINIO_BUCKET_VIDEO_JOB",
		"auth.private_key_path":               "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":                "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":               "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":              "JWT_REFRESH_TOKEN_TTL",
		"auth.cookie_domain":                  "AUTH_COOKIE_DOMAIN",
		"auth.login_rate_limit_per_hour":      "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":           "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":                 "LOGIN_LOCK_TTL",
		"ratelimit.backend":                   "RATE_LIMIT_BACKEND",
		"recruiter.approval_mode":             "RECRUITER_APPROVAL_MODE",
		"recruiter.confirmation_ttl":          "RECRUITER_CONFIRMATION_TTL",
		"mail.api_key_public":                 "MJ_APIKEY_PUBLIC",
		"mail.api_key_private":                "MJ_APIKEY_PRIVATE",
		"mail.from_email":                     "MAIL_FROM_EMAIL",
		"mail.from_name":                      "MAIL_FROM_NAME",
		"clamd.address":                       "CLAMD_ADDRESS",
		"log.level":                           "LOG_LEVEL",
		"log.format":                          "LOG_FORMAT",
		"worker.concurrency":                  "WORKER_CONCURRENCY",
		"worker.metrics_port":                 "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.SiteURL == "" {
		return errors.New("site url is required")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.PublicEndpoint == "" {
		return errors.New("minio public endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	b := cfg.MinIO.Buckets
	if b.CompanyVerifications == "" || b.CVUploads == "" || b.CVPublic == "" || b.Logos == "" || b.VideoJob == "" {
		return errors.New("all minio bucket names are required")
	}
	if cfg.Auth.PrivateKeyPath == "" || cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt key paths are required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch cfg.RateLimit.Backend {
	case RateLimitBackendMemory, RateLimitBackendRedis:
	default:
		return fmt.Errorf("invalid rate limit backend %q", cfg.RateLimit.Backend)
	}
	switch cfg.Recruiter.ApprovalMode {
	case ApprovalModeAdmin, ApprovalModeEmail:
	default:
		return fmt.Errorf("invalid recruiter approval mode %q", cfg.Recruiter.ApprovalMode)
	}
	if cfg.Recruiter.ConfirmationTTL <= 0 {
		return errors.New("recruiter confirmation ttl must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
