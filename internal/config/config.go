package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// PricePlan maps a Stripe price id to the sponsor tier it purchases and the
// number of access codes it provisions.
type PricePlan struct {
	Tier  string
	Codes int
}

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	ImageSize      string
	RequestTimeout time.Duration
	ChatCacheTTL   time.Duration

	GPTQuotaGrant   int
	FetchQuotaGrant int

	StripeSecretKey     string
	StripeWebhookSecret string
	PricePlans          map[string]PricePlan
	BootcampPriceCents  int64
	Domain              string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	SupportEmail string

	ListenAddr    string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getInt("REDIS_DB", 0),
		RedisPrefix:     getEnv("REDIS_PREFIX", "guardian"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ImageSize:       getEnv("OPENAI_IMAGE_SIZE", "512x512"),
		RequestTimeout:  time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		ChatCacheTTL:    time.Minute * time.Duration(getInt("CHAT_CACHE_TTL_MINUTES", 30)),
		GPTQuotaGrant:   getInt("GPT_QUOTA_GRANT", 500),
		FetchQuotaGrant: getInt("FETCH_QUOTA_GRANT", 100),
		Domain:          getEnv("DOMAIN", "https://afelu.com"),
		SMTPHost:        getEnv("SMTP_HOST", "smtp.zoho.com"),
		SMTPPort:        getInt("SMTP_PORT", 587),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPassword:    os.Getenv("SMTP_PASS"),
		FromEmail:       getEnv("FROM_EMAIL", "support@afelu.com"),
		SupportEmail:    getEnv("SUPPORT_EMAIL", "support@afelu.com"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "certificates"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.BootcampPriceCents = int64(getInt("BOOTCAMP_PRICE_CENTS", 29900))

	cfg.PricePlans = map[string]PricePlan{}
	if id := os.Getenv("STRIPE_PRICE_FRIEND"); id != "" {
		cfg.PricePlans[id] = PricePlan{Tier: "Friend", Codes: 2}
	}
	if id := os.Getenv("STRIPE_PRICE_FAMILY"); id != "" {
		cfg.PricePlans[id] = PricePlan{Tier: "Family", Codes: 7}
	}
	if id := os.Getenv("STRIPE_PRICE_COMMUNITY"); id != "" {
		cfg.PricePlans[id] = PricePlan{Tier: "Community", Codes: 20}
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely on process environment is fine in containers.
	return nil
}
