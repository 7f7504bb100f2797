package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TTL は Issue が発行するトークンの有効期間。
	TTL = time.Hour
	// Leeway は有効期限の判定で許容する時計のずれ。
	Leeway = 60 * time.Second
)

// Claims は検証済みトークンのペイロード。
// Verify または Issue 以外から生成しないこと。
type Claims struct {
	// Subject は認証済みの主体（ユーザーID）。
	Subject string
	// IssuedAt はトークンの発行時刻。
	IssuedAt time.Time
	// Expiry はトークンの有効期限。
	Expiry time.Time
}

// Kind は認証失敗の分類。運用者向けの診断にのみ使用し、
// クライアントへのレスポンスでは区別しない。
type Kind int

const (
	// KindMissing はリクエストにトークンが含まれていないことを表す。
	KindMissing Kind = iota + 1
	// KindMalformed はトークンの構造が不正であることを表す。
	KindMalformed
	// KindSignatureMismatch は署名が検証できないことを表す。
	KindSignatureMismatch
	// KindExpired はトークンの有効期限切れを表す。
	KindExpired
)

// String は分類名を返す。
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindMalformed:
		return "malformed"
	case KindSignatureMismatch:
		return "signature_mismatch"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// 認証失敗のセンチネルエラー。errors.Is で判定する。
var (
	ErrTokenMissing      = errors.New("トークンがありません")
	ErrTokenMalformed    = errors.New("トークンの形式が不正です")
	ErrSignatureMismatch = errors.New("トークンの署名が一致しません")
	ErrTokenExpired      = errors.New("トークンの有効期限が切れています")
)

// AuthError はトークン検証の失敗を表す。
type AuthError struct {
	// Kind は失敗の分類。
	Kind Kind
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

// Unwrap は原因のエラーを返す。
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *AuthError) sentinel() error {
	switch e.Kind {
	case KindMissing:
		return ErrTokenMissing
	case KindSignatureMismatch:
		return ErrSignatureMismatch
	case KindExpired:
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// Missing はトークンが見つからなかった場合のエラーを返す。
func Missing(reason string) error {
	return &AuthError{Kind: KindMissing, Err: errors.New(reason)}
}

// Verify はトークンを secret で検証し、Claims を返す。
// 署名方式はHS256のみ受け付け、有効期限には Leeway を適用する。
func Verify(tokenString, secret string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, &AuthError{Kind: KindMissing}
	}

	registered := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, registered, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, classify(err)
	}

	if strings.TrimSpace(registered.Subject) == "" {
		return Claims{}, &AuthError{Kind: KindMalformed, Err: errors.New("subが空です")}
	}

	claims := Claims{
		Subject: registered.Subject,
		Expiry:  registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// classify はjwtライブラリのエラーを Kind に振り分ける。
func classify(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &AuthError{Kind: KindMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &AuthError{Kind: KindSignatureMismatch, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Kind: KindExpired, Err: err}
	default:
		return &AuthError{Kind: KindMalformed, Err: err}
	}
}

// Issue は subject 用のトークンを secret で署名して発行する。
// 有効期限は発行時刻から TTL 後に設定する。
func Issue(subject, secret string) (string, error) {
	return issueAt(subject, secret, time.Now())
}

func issueAt(subject, secret string, now time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("subjectが空です")
	}
	if secret == "" {
		return "", errors.New("secretが空です")
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}
