// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minJWTSecretLength = 32

// Config はアプリケーション設定を表す。
// 起動時に一度だけ読み込み、以降は変更しない。
type Config struct {
	Port           string
	DatabaseURL    string
	DatabaseDriver string
	AutoMigrate    bool

	JWTSecret              string
	WalletEncryptionSecret string
	KMSKeyName             string
	BcryptCost             int
	TokenTTL               time.Duration

	Network             string
	EthRPCURL           string
	EtherscanAPIURL     string
	EtherscanAPIKey     string
	ChainTimeout        time.Duration
	HistoryMaxLimit     int
	HistoryDefaultLimit int

	RateLimitRPS      float64
	RateLimitBurst    int
	TrustProxyHeaders bool

	GoogleCloudProject string
	LogLevel           string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	databaseURL := os.Getenv("DATABASE_URL")
	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    databaseURL,
		DatabaseDriver: getEnv("DATABASE_DRIVER", inferDriver(databaseURL)),
		AutoMigrate:    getEnvBool("AUTO_MIGRATE", false),

		JWTSecret:              os.Getenv("JWT_SECRET"),
		WalletEncryptionSecret: os.Getenv("WALLET_ENCRYPTION_SECRET"),
		KMSKeyName:             os.Getenv("KMS_KEY_NAME"),
		BcryptCost:             getEnvInt("BCRYPT_COST", 12),
		TokenTTL:               getEnvDuration("TOKEN_TTL", 24*time.Hour),

		Network:             getEnv("NETWORK", "sepolia"),
		EthRPCURL:           os.Getenv("ETH_RPC_URL"),
		EtherscanAPIURL:     getEnv("ETHERSCAN_API_URL", "https://api.etherscan.io/v2/api"),
		EtherscanAPIKey:     os.Getenv("ETHERSCAN_API_KEY"),
		ChainTimeout:        getEnvDuration("CHAIN_TIMEOUT", 10*time.Second),
		HistoryMaxLimit:     getEnvInt("HISTORY_MAX_LIMIT", 100),
		HistoryDefaultLimit: getEnvInt("HISTORY_DEFAULT_LIMIT", 10),

		// 15分あたり100リクエスト
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 100.0/(15*60)),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),

		// リバースプロキシ配下でのみ有効にする
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "wallet-custody-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// Validate は必須設定と値の範囲を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	switch c.DatabaseDriver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength))
	}
	if c.WalletEncryptionSecret == "" {
		errs = append(errs, errors.New("WALLET_ENCRYPTION_SECRET is not set"))
	}
	if c.EthRPCURL == "" {
		errs = append(errs, errors.New("ETH_RPC_URL is not set"))
	}
	if c.BcryptCost < 10 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 10 and 31, got %d", c.BcryptCost))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.ChainTimeout <= 0 {
		errs = append(errs, errors.New("CHAIN_TIMEOUT must be positive"))
	}
	if c.HistoryMaxLimit < 1 {
		errs = append(errs, errors.New("HISTORY_MAX_LIMIT must be positive"))
	}
	if c.HistoryDefaultLimit < 1 || c.HistoryDefaultLimit > c.HistoryMaxLimit {
		errs = append(errs, fmt.Errorf("HISTORY_DEFAULT_LIMIT must be between 1 and %d", c.HistoryMaxLimit))
	}
	return errors.Join(errs...)
}

// inferDriver はDSNの形式からドライバを推定する。
func inferDriver(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return "sqlite"
	default:
		return "mysql"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return val
	}
	return defaultVal
}
