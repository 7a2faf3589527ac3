package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port   string
	JWTKey string

	DBDriver   string // postgres, mysql or sqlite
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBDSN      string // overrides the individual DB_* settings when set

	RedisAddr     string // catalog cache is disabled when empty
	RedisPassword string
	RedisDB       int
	CatalogTTL    time.Duration

	LockTimeout         time.Duration
	ConflictRetries     int
	StorageRetryBackoff time.Duration
	ReconcileSchedule   string

	CertificateServiceURL string
	CertificateServiceKey string
	CertificateIssuerID   uint
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:   getEnv("PORT", "3000"),
		JWTKey: getEnv("JWT_SECRET_KEY", "defaultSecret"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "coursehub"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBDSN:      getEnv("DB_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CatalogTTL:    time.Duration(getEnvInt("CATALOG_CACHE_TTL", 300)) * time.Second,

		LockTimeout:         time.Duration(getEnvInt("LOCK_TIMEOUT", 5000)) * time.Millisecond,
		ConflictRetries:     getEnvInt("CONFLICT_RETRIES", 3),
		StorageRetryBackoff: time.Duration(getEnvInt("STORAGE_RETRY_BACKOFF", 100)) * time.Millisecond,
		ReconcileSchedule:   getEnv("RECONCILE_SCHEDULE", "*/10 * * * *"),

		CertificateServiceURL: getEnv("CERTIFICATE_SERVICE_URL", ""),
		CertificateServiceKey: getEnv("CERTIFICATE_SERVICE_KEY", ""),
		CertificateIssuerID:   uint(getEnvInt("CERTIFICATE_ISSUER_ID", 0)),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.CertificateServiceURL == "" {
		log.Println("Warning: CERTIFICATE_SERVICE_URL not set. Certificate documents will not be generated.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}
