// Package middleware はゲートウェイのGinエンジンで使用する共通ミドルウェアを提供する。
//
// zapによる構造化アクセスログ、パニックリカバリ、リクエストIDの付与、
// CORS設定を含む。トークン検証はミドルウェアではなく
// ゲートウェイのパイプラインで行う。
package middleware
