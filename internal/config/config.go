package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SMTPHost         string `yaml:"smtp_host"`
	SMTPPort         int    `yaml:"smtp_port"`
	SMTPHostname     string `yaml:"smtp_hostname"`
	SMTPAuthRequired bool   `yaml:"smtp_auth_required"`
	SMTPUsername     string `yaml:"smtp_username"`
	SMTPPassword     string `yaml:"smtp_password"`
	MaxMessageBytes  int    `yaml:"max_message_bytes"`

	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`

	DNSNameservers []string `yaml:"dns_nameservers"`
	DNSTimeoutSecs int      `yaml:"dns_timeout_seconds"`
	TargetDomain   string   `yaml:"target_domain"`
	ManagedSuffix  string   `yaml:"managed_suffix"`

	CloudflareToken  string `yaml:"cloudflare_token"`
	CloudflareZoneID string `yaml:"cloudflare_zone_id"`
	CloudflareDomain string `yaml:"cloudflare_domain"`

	TelegramToken string `yaml:"telegram_token"`
	OwnerChatID   int64  `yaml:"owner_chat_id"`

	HTTPAddr      string `yaml:"http_addr"`
	AdminPassword string `yaml:"admin_password"`
	JWTSecret     string `yaml:"jwt_secret"`

	LogLevel string `yaml:"log_level"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// MAILBRIDGE_CONFIG, and finally environment variable overrides.
func Load() (*Config, error) {
	cfg := &Config{
		SMTPHost:        "0.0.0.0",
		SMTPPort:        1025,
		SMTPHostname:    "mailbridge.local",
		MaxMessageBytes: 5242880, // 5MB
		RedisURL:        "redis://localhost:6379/0",
		TTLSeconds:      604800, // 7 days
		DNSTimeoutSecs:  10,
		TargetDomain:    "t.me",
		ManagedSuffix:   "t.me",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
	}

	if path := os.Getenv("MAILBRIDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPHostname = getEnv("SMTP_HOSTNAME", cfg.SMTPHostname)
	cfg.SMTPAuthRequired = getEnvBool("SMTP_AUTH_REQUIRED", cfg.SMTPAuthRequired)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.MaxMessageBytes = getEnvInt("MAX_MESSAGE_BYTES", cfg.MaxMessageBytes)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.TTLSeconds = getEnvInt("TTL_SECONDS", cfg.TTLSeconds)
	if ns := getEnv("DNS_NAMESERVERS", ""); ns != "" {
		cfg.DNSNameservers = strings.Split(ns, ",")
	}
	cfg.DNSTimeoutSecs = getEnvInt("DNS_TIMEOUT_SECONDS", cfg.DNSTimeoutSecs)
	cfg.TargetDomain = getEnv("TARGET_DOMAIN", cfg.TargetDomain)
	cfg.ManagedSuffix = getEnv("MANAGED_SUFFIX", cfg.ManagedSuffix)
	cfg.CloudflareToken = getEnv("CLOUDFLARE_TOKEN", cfg.CloudflareToken)
	cfg.CloudflareZoneID = getEnv("CLOUDFLARE_ZONE_ID", cfg.CloudflareZoneID)
	cfg.CloudflareDomain = getEnv("CLOUDFLARE_DOMAIN", cfg.CloudflareDomain)
	cfg.TelegramToken = getEnv("TELEGRAM_TOKEN", cfg.TelegramToken)
	cfg.OwnerChatID = getEnvInt64("OWNER_CHAT_ID", cfg.OwnerChatID)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if cfg.SMTPAuthRequired && (cfg.SMTPUsername == "" || cfg.SMTPPassword == "") {
		return nil, fmt.Errorf("smtp auth required but credential not set")
	}

	return cfg, nil
}

// SMTPAddr returns the host:port the SMTP listener binds to.
func (c *Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
