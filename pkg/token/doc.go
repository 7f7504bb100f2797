// Package token はゲートウェイが受け付けるBearerトークン（HS256署名のJWT）を扱う。
//
// Verify は共有シークレットでトークンを検証し、Claims を返す。
// Issue は運用ツールとテストのためのトークン発行関数であり、
// リクエスト転送の経路からは呼び出されない。
package token
