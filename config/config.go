package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBDriver string
	DBName   string
	JWTKey   string

	FrontendURL string
	BackendURL  string

	IPayVendorID  string
	IPaySecretKey string

	FormBuilderWebhookSecret string
	CronSecret               string

	SendGridAPIKey string
	EmailSender    string

	BlobToken   string
	BlobBaseURL string

	CertRenderURL string

	PaymentExpiryMinutes int // TTL for pending payments
	MaxWebhookAttempts   int // retry ceiling for gateway callbacks
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
		Port:     getEnv("PORT", "3000"),
		DBDriver: getEnv("DB_DRIVER", "postgres"),
		DBName:   getEnv("DB_NAME", "lms"),
		JWTKey:   getEnv("JWT_SECRET_KEY", "defaultSecret"),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:3000"),

		IPayVendorID:  getEnv("IPAY_VENDOR_ID", "demo"),
		IPaySecretKey: getEnv("IPAY_SECRET_KEY", ""),

		FormBuilderWebhookSecret: getEnv("FORMBUILDER_WEBHOOK_SECRET", ""),
		CronSecret:               getEnv("CRON_SECRET", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailSender:    getEnv("EMAIL_SENDER", "noreply@localhost"),

		BlobToken:   getEnv("BLOB_TOKEN", ""),
		BlobBaseURL: getEnv("BLOB_BASE_URL", "https://blob.vercel-storage.com"),

		CertRenderURL: getEnv("CERT_RENDER_URL", ""),

		PaymentExpiryMinutes: getEnvInt("PAYMENT_EXPIRY_MINUTES", 30),
		MaxWebhookAttempts:   getEnvInt("MAX_WEBHOOK_ATTEMPTS", 5),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.IPayVendorID == "demo" {
		log.Println("Warning: iPay running in demo mode. Callback signatures are NOT verified.")
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
