package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/utils"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	Server        ServerConfig
	Cognito       CognitoConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `validate:"required"`
	Port            int           `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// CognitoConfig holds the user pool the service accepts tokens from
type CognitoConfig struct {
	Region     string `validate:"required"`
	UserPoolID string `validate:"required"`
	// ClientID enables the audience check when set
	ClientID string
	TokenUse string `validate:"oneof=access id"`
	// JWKSURL overrides the URL derived from Region and UserPoolID
	JWKSURL       string        `validate:"omitempty,url"`
	JWKSTimeout   time.Duration `validate:"gt=0"`
	JWKSMaxAge    time.Duration `validate:"gte=0"`
	// UnknownKidTTL remembers kids missing from a fresh key set; zero disables
	UnknownKidTTL time.Duration `validate:"gte=0"`
}

// CORSConfig holds cross-origin settings for the HTTP boundary
type CORSConfig struct {
	AllowedOrigins []string `validate:"min=1,dive,required"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json text"` // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Cognito: CognitoConfig{
			Region:        getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:    getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:      getEnv("COGNITO_CLIENT_ID", ""),
			TokenUse:      getEnv("COGNITO_TOKEN_USE", cognito.TokenUseAccess),
			JWKSURL:       getEnv("COGNITO_JWKS_URL", ""),
			JWKSTimeout:   getEnvAsDuration("COGNITO_JWKS_TIMEOUT", 5*time.Second),
			JWKSMaxAge:    getEnvAsDuration("COGNITO_JWKS_MAX_AGE", time.Hour),
			UnknownKidTTL: getEnvAsDuration("COGNITO_UNKNOWN_KID_TTL", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and the rules that span several fields
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		if fields := utils.GetValidationFields(err); len(fields) > 0 {
			return fmt.Errorf("%w: %s", err, joinFields(fields))
		}
		return err
	}

	if c.IsProduction() {
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required in production")
		}
		if c.Cognito.JWKSURL != "" && !strings.HasPrefix(c.Cognito.JWKSURL, "https://") {
			return fmt.Errorf("cognito JWKS URL must use https in production")
		}
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("wildcard CORS origin is not allowed in production")
			}
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KeySetURL returns the JWKS document URL for the pool
func (c *CognitoConfig) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return cognito.JWKSURL(c.Region, c.UserPoolID)
}

// Issuer returns the expected iss claim
func (c *CognitoConfig) Issuer() string {
	return cognito.IssuerURL(c.Region, c.UserPoolID)
}

// LogString returns the pool settings in a form safe for logs.
func (c *CognitoConfig) LogString() string {
	host := c.KeySetURL()
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("region=%s user_pool=%s token_use=%s jwks_host=%s audience_check=%t",
		c.Region, c.UserPoolID, c.TokenUse, host, c.ClientID != "")
}

func joinFields(fields map[string]string) string {
	msgs := make([]string, 0, len(fields))
	for _, msg := range fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
