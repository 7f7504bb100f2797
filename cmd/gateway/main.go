// API Gatewayサービスのエントリポイント。
// Bearerトークンを検証し、サービス名で指定されたバックエンドへリクエストを転送する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/tokengate/internal/gateway"
	"github.com/nao1215/tokengate/pkg/logging"
)

func main() {
	cfg, err := gateway.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := gateway.BuildRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("サービスレジストリの構築に失敗", zap.Error(err))
	}
	if reg.Len() == 0 {
		logger.Warn("サービスが1件も登録されていません。SERVICES / SERVICES_FILE / SERVICES_DB を確認してください")
	}
	logger.Info("サービスレジストリを読み込みました", zap.Strings("services", reg.Names()))

	server, err := gateway.NewServer(cfg, reg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Gatewayサービスの起動に失敗", zap.Error(err))
	}
}
