package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/tokengate/internal/registry"
	"github.com/nao1215/tokengate/pkg/httpclient"
	"github.com/nao1215/tokengate/pkg/middleware"
)

// pathRedactor はリクエストパスにトークンを含む方式が実装する。
type pathRedactor interface {
	RedactPath(path string) string
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
	// pipeline は認証・ルーティング・転送を行うパイプライン。
	pipeline *Pipeline
	// source はトークンの取り出し方式。
	source TokenSource
	// maxBodyBytes はリクエストボディの上限バイト数。
	maxBodyBytes int64
	// metrics はPrometheusメトリクス。
	metrics *Metrics
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
// reg は起動時に構築済みのサービスレジストリで、以降は参照のみ行う。
func NewServer(cfg Config, reg *registry.Registry, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrSecretRequired
	}
	source, err := NewTokenSource(cfg.TokenSource)
	if err != nil {
		return nil, err
	}

	client := httpclient.New(httpclient.Config{
		Timeout:      cfg.UpstreamTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	return newServer(cfg, source, NewPipeline(cfg.JWTSecret, reg, client), client.MaxBodyBytes(), logger), nil
}

func newServer(cfg Config, source TokenSource, pipeline *Pipeline, maxBodyBytes int64, logger *zap.Logger) *Server {
	router := gin.New()
	// サブパスをエスケープされたまま転送する
	router.UseRawPath = true
	router.UnescapePathValues = false

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	var logOpts []middleware.LoggerOption
	if r, ok := source.(pathRedactor); ok {
		logOpts = append(logOpts, middleware.WithPathRedactor(r.RedactPath))
	}
	router.Use(middleware.Logger(logger, logOpts...))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router:          router,
		port:            cfg.Port,
		shutdownTimeout: shutdownTimeout,
		pipeline:        pipeline,
		source:          source,
		maxBodyBytes:    maxBodyBytes,
		metrics:         NewMetrics(),
		logger:          logger,
	}
	s.setupRoutes()

	return s
}

// Handler はGinエンジンをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// リッスンに失敗した場合は即座にエラーを返す。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%s", s.port))
	if err != nil {
		return fmt.Errorf("ポート %s のリッスンに失敗: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln でリクエストを受け付ける。ctxがキャンセルされると
// 処理中のリクエストの完了を待ってから終了する。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Gatewayサービスを起動します",
		zap.String("addr", ln.Addr().String()),
		zap.String("token_source", s.source.Name()),
	)
	if s.source.Legacy() {
		s.logger.Warn("互換用のトークン取り出し方式が有効です。トークンがアクセスログやURL履歴に残ります",
			zap.String("token_source", s.source.Name()),
		)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Gatewayサービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router.Any(s.source.Pattern(), s.handleGateway())
}

// handleGateway は受信したリクエストをパイプラインで処理するハンドラを返す。
func (s *Server) handleGateway() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		in, err := s.source.Extract(c, s.maxBodyBytes)
		if err != nil {
			s.fail(c, "", extractFailure(err), start)
			return
		}

		resp, failure := s.pipeline.Run(c.Request.Context(), in)
		if failure != nil {
			service := ""
			if failure.Stage >= StageRouted {
				service = in.Service
			}
			s.fail(c, service, failure, start)
			return
		}

		s.respond(c, resp)
		s.metrics.observe(in.Service, outcomeResponded, time.Since(start))
	}
}

// respond はバックエンドのレスポンスをそのまま書き出す。
func (s *Server) respond(c *gin.Context, resp *httpclient.Response) {
	header := c.Writer.Header()
	for key, values := range resp.Header {
		header[key] = slices.Clone(values)
	}
	c.Status(resp.StatusCode)
	if len(resp.Body) == 0 {
		c.Writer.WriteHeaderNow()
		return
	}
	if _, err := c.Writer.Write(resp.Body); err != nil {
		s.logger.Debug("レスポンスの書き出しに失敗しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
}

// fail は失敗の種類に応じたステータスコードとエラーメッセージを返す。
func (s *Server) fail(c *gin.Context, service string, failure *Failure, start time.Time) {
	status := failure.Reason.Status()
	fields := []zap.Field{
		zap.String("stage", failure.Stage.String()),
		zap.String("reason", failure.Reason.String()),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(failure.Err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("リクエストの処理に失敗しました", fields...)
	} else {
		s.logger.Warn("リクエストの処理に失敗しました", fields...)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": failure.Reason.message()})
	s.metrics.observe(service, failure.Reason.String(), time.Since(start))
}
