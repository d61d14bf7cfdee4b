package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

// Watch modes
const (
	WatchModePoll    = "poll"
	WatchModeWebhook = "webhook"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Text      TextConfig
	Gemini    GeminiConfig
	Groq      GroqConfig
	Suno      SunoConfig
	Runware   RunwareConfig
	Storage   StorageConfig
	R2        R2Config
	Minio     MinioConfig
	Watcher   WatcherConfig
	Pipeline  PipelineConfig
	Tracing   TracingConfig
	AMQP      AMQPConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	PublicURL string // root used to build the music callback URL
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string // empty disables bearer auth
}

type RateLimitConfig struct {
	CreatePerHour int
}

type TextConfig struct {
	Provider string // gemini or groq
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SunoConfig struct {
	APIKey       string
	BaseURL      string
	GeneratePath string
	StatusPath   string
	Model        string
	Instrumental bool
}

type RunwareConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Width     int
	Height    int
	Steps     int
	Scheduler string
}

type StorageConfig struct {
	Backend string // r2 or minio
}

type R2Config struct {
	AccountID       string
	Endpoint        string // overrides the account endpoint, e.g. GCS interoperability
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	BucketName string
	PublicURL  string
}

type WatcherConfig struct {
	Mode         string
	PollInterval time.Duration
	MaxRetries   int
}

type PipelineConfig struct {
	TempDir             string
	JobStore            string // memory or redis
	JobTTL              time.Duration
	EventWaitTimeout    time.Duration
	StageHandoff        bool
	DownloadConcurrency int
	Concurrency         int
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	for _, key := range []string{
		"REDIS_PASSWORD", "AUTH_JWT_SECRET", "GEMINI_API_KEY", "GROQ_API_KEY",
		"SUNO_API_KEY", "RUNWARE_API_KEY", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY",
		"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "AMQP_URL",
	} {
		readSecret(key)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	_ = v.BindEnv("ratelimit.create_per_hour", "RATELIMIT_CREATE_PER_HOUR")
	_ = v.BindEnv("text.provider", "TEXT_PROVIDER")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = v.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = v.BindEnv("groq.model", "GROQ_MODEL")
	_ = v.BindEnv("suno.api_key", "SUNO_API_KEY", "APIBOX_KEY")
	_ = v.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = v.BindEnv("suno.generate_path", "SUNO_GENERATE_PATH")
	_ = v.BindEnv("suno.status_path", "SUNO_STATUS_PATH")
	_ = v.BindEnv("suno.model", "SUNO_MODEL")
	_ = v.BindEnv("suno.instrumental", "SUNO_INSTRUMENTAL")
	_ = v.BindEnv("runware.api_key", "RUNWARE_API_KEY")
	_ = v.BindEnv("runware.base_url", "RUNWARE_API_URL")
	_ = v.BindEnv("runware.model", "RUNWARE_MODEL")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME", "GCS_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	_ = v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	_ = v.BindEnv("minio.bucket_name", "MINIO_BUCKET_NAME")
	_ = v.BindEnv("minio.public_url", "MINIO_PUBLIC_URL")
	_ = v.BindEnv("watcher.mode", "WATCH_MODE")
	_ = v.BindEnv("watcher.poll_interval", "POLL_INTERVAL")
	_ = v.BindEnv("watcher.max_retries", "POLL_MAX_RETRIES")
	_ = v.BindEnv("pipeline.temp_dir", "PIPELINE_TEMP_DIR")
	_ = v.BindEnv("pipeline.job_store", "JOB_STORE")
	_ = v.BindEnv("pipeline.job_ttl", "JOB_TTL")
	_ = v.BindEnv("pipeline.event_wait_timeout", "EVENT_WAIT_TIMEOUT")
	_ = v.BindEnv("pipeline.stage_handoff", "STAGE_HANDOFF")
	_ = v.BindEnv("pipeline.download_concurrency", "DOWNLOAD_CONCURRENCY")
	_ = v.BindEnv("pipeline.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_ENDPOINT")
	_ = v.BindEnv("tracing.service_name", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("amqp.url", "AMQP_URL")
	_ = v.BindEnv("amqp.exchange", "AMQP_EXCHANGE")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.create_per_hour", 20)
	v.SetDefault("text.provider", "gemini")

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-2.5-flash")

	// Groq defaults
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Suno defaults
	v.SetDefault("suno.base_url", "https://apibox.erweima.ai")
	v.SetDefault("suno.generate_path", "/api/v1/generate")
	v.SetDefault("suno.status_path", "/api/v1/status")
	v.SetDefault("suno.model", "V3_5")
	v.SetDefault("suno.instrumental", false)

	// Runware defaults
	v.SetDefault("runware.base_url", "https://api.runware.ai/v1")
	v.SetDefault("runware.model", "runware:100@1")
	v.SetDefault("runware.width", 896)
	v.SetDefault("runware.height", 1152)
	v.SetDefault("runware.steps", 12)
	v.SetDefault("runware.scheduler", "DPM++ 3M")

	v.SetDefault("storage.backend", "r2")
	v.SetDefault("minio.use_ssl", true)

	// Watcher defaults
	v.SetDefault("watcher.mode", WatchModePoll)
	v.SetDefault("watcher.poll_interval", 15*time.Second)
	v.SetDefault("watcher.max_retries", 20)

	// Pipeline defaults
	v.SetDefault("pipeline.temp_dir", os.TempDir())
	v.SetDefault("pipeline.job_store", "memory")
	v.SetDefault("pipeline.job_ttl", 24*time.Hour)
	v.SetDefault("pipeline.event_wait_timeout", 15*time.Minute)
	v.SetDefault("pipeline.stage_handoff", false)
	v.SetDefault("pipeline.download_concurrency", 4)
	v.SetDefault("pipeline.concurrency", 4)

	v.SetDefault("tracing.service_name", "musicvideo")
	v.SetDefault("amqp.exchange", "musicvideo.events")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
			PublicURL: strings.TrimRight(v.GetString("server.public_url"), "/"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		RateLimit: RateLimitConfig{
			CreatePerHour: v.GetInt("ratelimit.create_per_hour"),
		},
		Text: TextConfig{
			Provider: strings.ToLower(v.GetString("text.provider")),
		},
		Gemini: GeminiConfig{
			APIKey:  v.GetString("gemini.api_key"),
			BaseURL: v.GetString("gemini.base_url"),
			Model:   v.GetString("gemini.model"),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
		},
		Suno: SunoConfig{
			APIKey:       v.GetString("suno.api_key"),
			BaseURL:      strings.TrimRight(v.GetString("suno.base_url"), "/"),
			GeneratePath: v.GetString("suno.generate_path"),
			StatusPath:   v.GetString("suno.status_path"),
			Model:        v.GetString("suno.model"),
			Instrumental: v.GetBool("suno.instrumental"),
		},
		Runware: RunwareConfig{
			APIKey:    v.GetString("runware.api_key"),
			BaseURL:   v.GetString("runware.base_url"),
			Model:     v.GetString("runware.model"),
			Width:     v.GetInt("runware.width"),
			Height:    v.GetInt("runware.height"),
			Steps:     v.GetInt("runware.steps"),
			Scheduler: v.GetString("runware.scheduler"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("storage.backend")),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			Endpoint:        v.GetString("r2.endpoint"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       strings.TrimRight(v.GetString("r2.public_url"), "/"),
		},
		Minio: MinioConfig{
			Endpoint:   v.GetString("minio.endpoint"),
			AccessKey:  v.GetString("minio.access_key"),
			SecretKey:  v.GetString("minio.secret_key"),
			UseSSL:     v.GetBool("minio.use_ssl"),
			BucketName: v.GetString("minio.bucket_name"),
			PublicURL:  strings.TrimRight(v.GetString("minio.public_url"), "/"),
		},
		Watcher: WatcherConfig{
			Mode:         strings.ToLower(v.GetString("watcher.mode")),
			PollInterval: v.GetDuration("watcher.poll_interval"),
			MaxRetries:   v.GetInt("watcher.max_retries"),
		},
		Pipeline: PipelineConfig{
			TempDir:             v.GetString("pipeline.temp_dir"),
			JobStore:            strings.ToLower(v.GetString("pipeline.job_store")),
			JobTTL:              v.GetDuration("pipeline.job_ttl"),
			EventWaitTimeout:    v.GetDuration("pipeline.event_wait_timeout"),
			StageHandoff:        v.GetBool("pipeline.stage_handoff"),
			DownloadConcurrency: v.GetInt("pipeline.download_concurrency"),
			Concurrency:         v.GetInt("pipeline.concurrency"),
		},
		Tracing: TracingConfig{
			Endpoint:    v.GetString("tracing.endpoint"),
			ServiceName: v.GetString("tracing.service_name"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
		},
	}

	return cfg, nil
}

// CallbackURL is where the music service pushes completion notifications
func (c *Config) CallbackURL() string {
	return c.Server.PublicURL + "/music-callback"
}
