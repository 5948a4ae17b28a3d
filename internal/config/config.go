// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// FallbackSigningSecret は JWT_SECRET 未設定時に開発環境でのみ使われる署名鍵です。
// 推測可能な値なので本番モードでは起動を拒否します。
const FallbackSigningSecret = "dashboard-gate-insecure-development-secret"

// Config はアプリケーションの設定を保持する構造体です。
// Load 後は読み取り専用として扱います。
type Config struct {
	// 認証設定
	JWTSecret             string // セッショントークン署名用の秘密鍵
	DashboardPasswordHash string // bcryptでハッシュ化されたダッシュボード用パスワード

	// 実行環境
	AppEnv  string // development / production
	GinMode string // Ginの実行モード (debug, release, test)
	Port    string // APIサーバーのポート番号

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// Redis（空の場合はインメモリで動作）
	RedisURL string

	// ログイン試行制限
	LoginMaxAttempts   int // ロックまでの失敗回数
	LoginWindowMinutes int // 失敗回数を数える期間（分）
	LoginLockMinutes   int // ロック時間（分）

	// 監査ログの保持件数
	AuditRetention int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		JWTSecret:             getEnv("JWT_SECRET", ""),
		DashboardPasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),

		AppEnv:  getEnv("APP_ENV", "development"),
		GinMode: getEnv("GIN_MODE", "debug"),
		Port:    getEnv("PORT", "8080"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		RedisURL: getEnv("REDIS_URL", ""),

		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMinutes: getEnvAsInt("LOGIN_WINDOW_MINUTES", 15),
		LoginLockMinutes:   getEnvAsInt("LOGIN_LOCK_MINUTES", 10),

		AuditRetention: getEnvAsInt("AUDIT_RETENTION", 200),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// IsProduction は本番相当の環境で動作しているかを返します。
// Cookie の Secure 属性や起動時の検証に利用します。
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || c.GinMode == "release"
}

// SigningSecret はトークン署名に使う鍵を返します。
// JWT_SECRET が未設定の場合はフォールバック値を返します。
func (c *Config) SigningSecret() string {
	if c.JWTSecret == "" {
		return FallbackSigningSecret
	}
	return c.JWTSecret
}

// UsesFallbackSecret はフォールバックの署名鍵が使われているかを返します。
func (c *Config) UsesFallbackSecret() bool {
	return c.JWTSecret == ""
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.LoginWindowMinutes <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be positive")
	}
	if c.LoginLockMinutes <= 0 {
		return fmt.Errorf("LOGIN_LOCK_MINUTES must be positive")
	}

	// ローカル開発ではフォールバック鍵で動かせるが、本番では必須
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production mode")
		}
		if c.DashboardPasswordHash == "" {
			return fmt.Errorf("DASHBOARD_PASSWORD_HASH is required in production mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
