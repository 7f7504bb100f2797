package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerOption はLoggerミドルウェアの設定を変更する。
type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	redactPath func(string) string
}

// WithPathRedactor はアクセスログに出力するパスを fn で書き換える。
// パスに認証情報が含まれる場合に使う。
func WithPathRedactor(fn func(string) string) LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.redactPath = fn
	}
}

// Logger はリクエストごとのアクセスログをzapで出力するGinミドルウェアを返す。
// gin.Logger() の代わりに使用する。
func Logger(logger *zap.Logger, opts ...LoggerOption) gin.HandlerFunc {
	var cfg loggerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if cfg.redactPath != nil {
			path = cfg.redactPath(path)
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
			zap.String("request_id", GetRequestID(c)),
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
