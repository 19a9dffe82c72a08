package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	Database  Database
	Firebase  Firebase
	Storage   Storage
	Gemini    Gemini
	Stripe    Stripe
	Chat      Chat
	RateLimit RateLimit
}

type Database struct {
	Driver string // mysql | postgres
	DSN    string

	// Cloud SQL (unix socket) 接続用。DSN が空の場合のみ使う
	User           string
	Password       string
	Name           string
	CloudSQLConn   string
	Seed           bool
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxLifeTTL time.Duration
}

type Firebase struct {
	CredentialsFile string
	ProjectID       string
}

type Storage struct {
	Driver          string // gcs | minio
	Bucket          string
	CredentialsFile string
	URLExpiry       time.Duration
	MinIO           MinIO
}

type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	PublicURL string
}

type Gemini struct {
	ProjectID string
	Location  string
	Model     string
}

type Stripe struct {
	SecretKey string
	Currency  string
}

type Chat struct {
	// EnforceBlocks が true の場合、ブロック関係にあるユーザー間のメッセージ送信を拒否する
	EnforceBlocks bool
	SendBuffer    int
	PingInterval  time.Duration
	AllowQueryID  bool
}

type RateLimit struct {
	RequestsPerMinute int
	Burst             int
	MessagesPerMinute int
	MessageBurst      int
	CleanupInterval   time.Duration
}

// Load は .env (存在すれば) と環境変数から設定を読み込む
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	return &Config{
		Port:           getEnv("PORT", "8082"),
		AllowedOrigins: getEnvAsSlice("CORS_ALLOW_ORIGINS", nil),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		Database: Database{
			Driver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			DSN:            getEnv("DATABASE_URL", ""),
			User:           getEnv("DB_USER", ""),
			Password:       getEnv("DB_PASSWORD", ""),
			Name:           getEnv("DB_NAME", ""),
			CloudSQLConn:   getEnv("CLOUD_SQL_CONNECTION_NAME", ""),
			Seed:           getEnvBool("DB_SEED", true),
			MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifeTTL: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Firebase: Firebase{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "serviceAccountKey.json"),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Storage: Storage{
			Driver:          strings.ToLower(getEnv("STORAGE_DRIVER", "gcs")),
			Bucket:          getEnv("STORAGE_BUCKET", "campus-market-images"),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			URLExpiry:       getEnvAsDuration("STORAGE_URL_EXPIRY", 15*time.Minute),
			MinIO: MinIO{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
				Region:    getEnv("MINIO_REGION", "us-east-1"),
				PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
			},
		},
		Gemini: Gemini{
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
			Location:  getEnv("GEMINI_LOCATION", "us-central1"),
			Model:     getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		},
		Stripe: Stripe{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:  strings.ToLower(getEnv("STRIPE_CURRENCY", "vnd")),
		},
		Chat: Chat{
			EnforceBlocks: getEnvBool("CHAT_ENFORCE_BLOCKS", true),
			SendBuffer:    getEnvAsInt("WS_SEND_BUFFER", 64),
			PingInterval:  getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			AllowQueryID:  getEnvBool("WS_ALLOW_QUERY_USER_ID", true),
		},
		RateLimit: RateLimit{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 120),
			MessagesPerMinute: getEnvAsInt("MESSAGE_RATE_LIMIT_PER_MINUTE", 60),
			MessageBurst:      getEnvAsInt("MESSAGE_RATE_LIMIT_BURST", 20),
			CleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
