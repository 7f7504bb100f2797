// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 受信したリクエストごとに、トークンの検証、サービス名の解決、
// バックエンドへの転送、レスポンスの中継を順に行う。いずれかの段階で
// 失敗した時点で処理を打ち切り、失敗の種類に応じたステータスコードを返す。
//
// トークンの取り出し方は TokenSource で切り替える。Authorizationヘッダーが
// 既定であり、パスやフォームにトークンを含める方式は互換性のためだけに残している。
package gateway
