package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type CKey string

const (
	TenantIDKey  CKey = "tenant_id"
	RequestIDKey CKey = "request_id"
)

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port              string
	APIKey            string
	AppURL            string
	Environment       string
	DatabasePath      string
	GatewayTimeout    time.Duration
	OpenSearchURL     string
	OpenSearchUser    string
	OpenSearchPass    string
	EnableLogging     bool
	LoggingLevel      string
	NotifyWorkers     int
	NotifyQueueSize   int
	TrustProxy        bool
	NodeID            int64
	CORSOrigins       []string
	WebhookAllowlists map[string][]string
	WebhookRateLimit  int
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	appConfigOnce     sync.Once
	instanceOnce      sync.Once
)

func App() *Config {
	instanceOnce.Do(func() {
		instance = &Config{
			Validator: validator.New(),
		}
	})
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	appConfigOnce.Do(func() {
		appConfigInstance = LoadAppConfig()
	})
	return appConfigInstance
}

// LoadAppConfig reads the configuration from the environment without caching it
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:              GetEnv("APP_PORT", "9999"),
		APIKey:            GetEnv("API_KEY", ""),
		AppURL:            strings.TrimRight(GetEnv("APP_URL", "http://localhost:9999"), "/"),
		Environment:       GetEnv("ENVIRONMENT", "development"),
		DatabasePath:      GetEnv("DATABASE_PATH", "./data/academypay.db"),
		GatewayTimeout:    GetDurationEnv("GATEWAY_TIMEOUT", 30*time.Second),
		OpenSearchURL:     GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
		OpenSearchUser:    GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass:    GetEnv("OPENSEARCH_PASSWORD", ""),
		EnableLogging:     GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
		LoggingLevel:      GetEnv("LOGGING_LEVEL", "info"),
		NotifyWorkers:     GetIntEnv("NOTIFY_WORKERS", 4),
		NotifyQueueSize:   GetIntEnv("NOTIFY_QUEUE_SIZE", 256),
		TrustProxy:        GetBoolEnv("TRUST_PROXY", false),
		NodeID:            int64(GetIntEnv("NODE_ID", 1)),
		CORSOrigins:       corsOrigins(),
		WebhookAllowlists: webhookAllowlists(os.Environ()),
		WebhookRateLimit:  GetIntEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE", 600),
	}
}

// CallbackURL returns the public webhook URL for a gateway
func (c *AppConfig) CallbackURL(gateway string) string {
	return c.AppURL + "/webhooks/" + gateway
}

// IsProduction reports whether the service runs in production
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// webhookAllowlists collects WEBHOOK_IP_ALLOWLIST_<GATEWAY> variables
func webhookAllowlists(environ []string) map[string][]string {
	const prefix = "WEBHOOK_IP_ALLOWLIST_"
	lists := make(map[string][]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		gateway := strings.ToLower(strings.TrimPrefix(key, prefix))
		if ips := splitList(value); gateway != "" && len(ips) > 0 {
			lists[gateway] = ips
		}
	}
	return lists
}

func corsOrigins() []string {
	if origins := GetListEnv("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		return origins
	}
	return []string{"*"}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go durations ("15s") or plain seconds ("15")
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable
func GetListEnv(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
