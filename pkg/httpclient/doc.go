// Package httpclient はゲートウェイからバックエンドサービスへの転送を行う
// HTTPクライアントを提供する。
//
// 受信したリクエストを上限付きで読み込み、転送先URLを組み立てて
// 接続プール付きのクライアントで送信する。バックエンドのレスポンスは
// ステータス・ヘッダー・ボディをそのまま Response に詰め直して返す。
package httpclient
