package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/tokengate/internal/registry"
	"github.com/nao1215/tokengate/pkg/httpclient"
)

// ErrSecretRequired はJWT_SECRETが設定されていないことを表す。
var ErrSecretRequired = errors.New("JWT_SECRETが設定されていません")

// Config はGatewayサーバーの設定。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン検証用の共有シークレット。
	JWTSecret string
	// TokenSource はトークンの取り出し方式（header / path / form）。
	TokenSource string
	// Services は "name=url,name=url" 形式のサービス定義。
	Services string
	// ServicesFile はサービス定義のYAMLファイルのパス。
	ServicesFile string
	// ServicesDB はサービス定義を持つSQLiteデータベースのパス。
	ServicesDB string
	// UpstreamTimeout はバックエンド呼び出し全体のタイムアウト。
	UpstreamTimeout time.Duration
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
	// MaxBodyBytes はリクエストボディの上限バイト数。
	MaxBodyBytes int64
	// CORSAllowedOrigins はCORSを許可するオリジン。空の場合はCORSを無効にする。
	CORSAllowedOrigins []string
	// LogLevel はログレベル。
	LogLevel string
	// LogFormat はログ形式（json / console）。
	LogFormat string
}

// LoadConfig は環境変数から設定を読み込む。
// getenv には通常 os.Getenv を渡す。
func LoadConfig(getenv func(string) string) (Config, error) {
	env := func(key, defaultValue string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return defaultValue
	}

	cfg := Config{
		Port:         env("PORT", "8080"),
		JWTSecret:    getenv("JWT_SECRET"),
		TokenSource:  env("TOKEN_SOURCE", SourceHeader),
		Services:     getenv("SERVICES"),
		ServicesFile: getenv("SERVICES_FILE"),
		ServicesDB:   getenv("SERVICES_DB"),
		LogLevel:     env("LOG_LEVEL", "info"),
		LogFormat:    env("LOG_FORMAT", "json"),
	}
	if cfg.JWTSecret == "" {
		return Config{}, ErrSecretRequired
	}

	var err error
	if cfg.UpstreamTimeout, err = time.ParseDuration(env("UPSTREAM_TIMEOUT", "30s")); err != nil {
		return Config{}, fmt.Errorf("UPSTREAM_TIMEOUTの解析に失敗: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(env("SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUTの解析に失敗: %w", err)
	}
	if cfg.MaxBodyBytes, err = strconv.ParseInt(env("MAX_BODY_BYTES", strconv.FormatInt(httpclient.DefaultMaxBodyBytes, 10)), 10, 64); err != nil {
		return Config{}, fmt.Errorf("MAX_BODY_BYTESの解析に失敗: %w", err)
	}

	for origin := range strings.SplitSeq(getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if _, err := NewTokenSource(cfg.TokenSource); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv はプロセスの環境変数から設定を読み込む。
func LoadConfigFromEnv() (Config, error) {
	return LoadConfig(os.Getenv)
}

// BuildRegistry は設定されたすべての定義元からサービスレジストリを構築する。
// 同じサービス名は SERVICES、SERVICES_FILE、SERVICES_DB の順に後の定義が優先される。
func BuildRegistry(ctx context.Context, cfg Config) (*registry.Registry, error) {
	inline, err := registry.ParseInline(cfg.Services)
	if err != nil {
		return nil, err
	}

	var fromFile map[string]string
	if cfg.ServicesFile != "" {
		if fromFile, err = registry.LoadYAML(cfg.ServicesFile); err != nil {
			return nil, err
		}
	}

	var fromDB map[string]string
	if cfg.ServicesDB != "" {
		if fromDB, err = registry.OpenSQLite(ctx, cfg.ServicesDB); err != nil {
			return nil, err
		}
	}

	reg, err := registry.New(registry.Merge(inline, fromFile, fromDB))
	if err != nil {
		return nil, fmt.Errorf("サービスレジストリの構築に失敗: %w", err)
	}
	return reg, nil
}
