package gateway

import (
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/tokengate/pkg/httpclient"
	"github.com/nao1215/tokengate/pkg/token"
)

// トークンの取り出し方式。
const (
	// SourceHeader は Authorization: Bearer ヘッダーからトークンを取り出す。既定の方式。
	SourceHeader = "header"
	// SourcePath はサービス名の前のパスセグメントからトークンを取り出す。互換用。
	SourcePath = "path"
	// SourceForm はフォームの token フィールドからトークンを取り出す。互換用。
	SourceForm = "form"
)

// formTokenField はフォーム方式でトークンを格納するフィールド名。
const formTokenField = "token"

// TokenSource は受信したリクエストからトークンと転送内容を取り出す。
type TokenSource interface {
	// Name は方式名を返す。
	Name() string
	// Pattern はGinに登録するルートパターンを返す。
	Pattern() string
	// Legacy はトークンがログやURLに残る互換用の方式かどうかを返す。
	Legacy() bool
	// Extract はリクエストから Inbound を組み立てる。
	Extract(c *gin.Context, maxBodyBytes int64) (*Inbound, error)
}

// NewTokenSource は方式名に対応する TokenSource を返す。
func NewTokenSource(name string) (TokenSource, error) {
	switch name {
	case SourceHeader, "":
		return headerSource{}, nil
	case SourcePath:
		return pathSource{}, nil
	case SourceForm:
		return formSource{}, nil
	default:
		return nil, fmt.Errorf("未対応のTOKEN_SOURCEです: %q（header / path / form）", name)
	}
}

// newInbound はトークン以外の共通項目を詰めた Inbound を返す。
// prefixSegments はサブパスより前にあるパスセグメントの数。
func newInbound(c *gin.Context, prefixSegments int) *Inbound {
	return &Inbound{
		Service:       c.Param("service"),
		Subpath:       escapedSubpath(c.Request.URL, prefixSegments),
		RawQuery:      c.Request.URL.RawQuery,
		Method:        c.Request.Method,
		Header:        c.Request.Header,
		Body:          c.Request.Body,
		ContentLength: c.Request.ContentLength,
		RemoteAddr:    c.Request.RemoteAddr,
		TLS:           c.Request.TLS != nil,
	}
}

// escapedSubpath はエスケープされたままのパスから先頭の prefixSegments 個の
// セグメントを取り除いた残りを返す。%3F や %252F などは受信したまま残る。
func escapedSubpath(u *url.URL, prefixSegments int) string {
	rest := strings.TrimPrefix(u.EscapedPath(), "/")
	for range prefixSegments {
		_, after, found := strings.Cut(rest, "/")
		if !found {
			return "/"
		}
		rest = after
	}
	return "/" + rest
}

// redactPathToken はパスの先頭セグメント（トークン）を伏せ字にする。
func redactPathToken(path string) string {
	rest := strings.TrimPrefix(path, "/")
	if rest == "" {
		return path
	}
	_, after, found := strings.Cut(rest, "/")
	if !found {
		return "/" + redactedToken
	}
	return "/" + redactedToken + "/" + after
}

// redactedToken はアクセスログでトークンの代わりに出力する文字列。
const redactedToken = "[REDACTED]"

// headerSource は Authorization ヘッダーからトークンを取り出す。
type headerSource struct{}

func (headerSource) Name() string    { return SourceHeader }
func (headerSource) Pattern() string { return "/:service/*subpath" }
func (headerSource) Legacy() bool    { return false }

func (headerSource) Extract(c *gin.Context, _ int64) (*Inbound, error) {
	in := newInbound(c, 1)

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, token.Missing("Authorizationヘッダーが必要です")
	}
	scheme, tokenString, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, token.Missing("Bearer トークン形式が不正です")
	}

	in.Token = strings.TrimSpace(tokenString)
	return in, nil
}

// pathSource は /:token/:service/*subpath のパスからトークンを取り出す。
type pathSource struct{}

func (pathSource) Name() string    { return SourcePath }
func (pathSource) Pattern() string { return "/:token/:service/*subpath" }
func (pathSource) Legacy() bool    { return true }

// RedactPath はアクセスログに出力するパスからトークンを取り除く。
func (pathSource) RedactPath(path string) string { return redactPathToken(path) }

func (pathSource) Extract(c *gin.Context, _ int64) (*Inbound, error) {
	in := newInbound(c, 2)
	in.Token = c.Param("token")
	return in, nil
}

// formSource はURLエンコードされたフォームの token フィールドからトークンを取り出す。
// token フィールドはバックエンドへ転送するボディから取り除く。
type formSource struct{}

func (formSource) Name() string    { return SourceForm }
func (formSource) Pattern() string { return "/:service/*subpath" }
func (formSource) Legacy() bool    { return true }

func (formSource) Extract(c *gin.Context, maxBodyBytes int64) (*Inbound, error) {
	in := newInbound(c, 1)

	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return nil, token.Missing("フォーム形式のリクエストではありません")
	}

	body, err := httpclient.ReadBody(c.Request.Body, c.Request.ContentLength, maxBodyBytes)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: フォームの解析に失敗: %v", httpclient.ErrInvalidRequest, err)
	}

	in.Token = values.Get(formTokenField)
	if in.Token == "" {
		return nil, token.Missing("tokenフィールドが必要です")
	}
	values.Del(formTokenField)

	encoded := values.Encode()
	in.Body = strings.NewReader(encoded)
	in.ContentLength = int64(len(encoded))
	return in, nil
}
