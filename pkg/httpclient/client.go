package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout はバックエンド呼び出し全体のデフォルトのタイムアウト。
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes はリクエストボディのデフォルトの上限（5MiB）。
	DefaultMaxBodyBytes int64 = 5 << 20

	// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
	headerKeyUserID = "X-User-ID"
)

// hopHeaders は転送区間ごとに意味を持つため、転送しないヘッダー。
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config はClientの設定。
type Config struct {
	// Timeout はバックエンド呼び出し全体（送信からボディ読み込みまで）の上限。
	Timeout time.Duration
	// MaxBodyBytes はリクエストボディの上限バイト数。
	MaxBodyBytes int64
	// Transport はテスト等で差し替えるためのRoundTripper。nilの場合は接続プール付きのTransportを使う。
	Transport http.RoundTripper
}

// Client はバックエンドへリクエストを転送するHTTPクライアント。
// 内部の http.Client は全リクエストで共有され、接続プールを再利用する。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// maxBodyBytes はリクエストボディの上限バイト数。
	maxBodyBytes int64
}

// Request はバックエンドへ転送するリクエスト。
type Request struct {
	// BaseURL はレジストリで解決したバックエンドのベースURL。
	BaseURL string
	// Subpath はルーティング接頭辞より後ろのパス。
	Subpath string
	// RawQuery は受信したリクエストのクエリ文字列。
	RawQuery string
	// Method はHTTPメソッド。
	Method string
	// Subject は認証済みの主体。X-User-IDヘッダーとして転送する。
	Subject string
	// Header は受信したリクエストヘッダー。
	Header http.Header
	// Body は受信したリクエストボディ。nilの場合は空として扱う。
	Body io.Reader
	// ContentLength は受信時のContent-Length。不明な場合は-1。
	ContentLength int64
	// RemoteAddr は呼び出し元のアドレス（host:port）。
	RemoteAddr string
	// TLS は受信したリクエストがTLS経由かどうか。
	TLS bool
}

// Response はバックエンドのレスポンスをそのまま保持する。
type Response struct {
	// StatusCode はバックエンドが返したステータスコード。
	StatusCode int
	// Header はバックエンドが返したヘッダー（ホップバイホップヘッダーを除く）。
	Header http.Header
	// Body はバックエンドが返したボディ。
	Body []byte
}

// New は新しい転送用HTTPクライアントを生成する。
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Transport == nil {
		cfg.Transport = newTransport()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			// リダイレクトはバックエンドのレスポンスとして呼び出し元に返す
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// newTransport は接続プール付きのTransportを生成する。
// レスポンスボディをそのまま中継するため、自動の伸張は無効にする。
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 256
	t.MaxIdleConnsPerHost = 64
	t.IdleConnTimeout = 90 * time.Second
	t.DisableCompression = true
	return t
}

// MaxBodyBytes はリクエストボディの上限バイト数を返す。
func (c *Client) MaxBodyBytes() int64 {
	return c.maxBodyBytes
}

// Forward はリクエストをバックエンドに転送し、レスポンスを返す。
// ボディが上限を超える場合はネットワーク送信を行わずに ErrBodyTooLarge を返す。
func (c *Client) Forward(ctx context.Context, in *Request) (*Response, error) {
	body, err := ReadBody(in.Body, in.ContentLength, c.maxBodyBytes)
	if err != nil {
		return nil, err
	}

	target := JoinURL(in.BaseURL, in.Subpath)
	if in.RawQuery != "" {
		target += "?" + in.RawQuery
	}

	var bodyReader io.Reader = http.NoBody
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, target, bodyReader)
	if err != nil {
		return nil, &ForwardError{Kind: ErrInvalidRequest, URL: target, Err: err}
	}
	req.Header = outboundHeader(in)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ForwardError{Kind: ErrUnreachable, URL: target, Err: err}
	}
	defer resp.Body.Close()

	return reconstruct(resp, target)
}

// ReadBody は r を limit バイトまで読み込む。
// 上限を超える場合は ErrBodyTooLarge を返す。
func ReadBody(r io.Reader, contentLength, limit int64) ([]byte, error) {
	if contentLength > limit {
		return nil, &ForwardError{Kind: ErrBodyTooLarge}
	}
	if r == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ForwardError{Kind: ErrInvalidRequest, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &ForwardError{Kind: ErrBodyTooLarge}
	}
	return body, nil
}

// JoinURL はベースURLとサブパスを、間にちょうど1つのスラッシュを挟んで連結する。
func JoinURL(baseURL, subpath string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(subpath, "/")
}

// outboundHeader は転送先へ送るヘッダーを組み立てる。
// X-User-IDは呼び出し元が指定した値を必ず上書きする。
func outboundHeader(in *Request) http.Header {
	h := in.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del("Content-Length")

	if clientIP, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}
	if in.TLS {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}

	h.Set(headerKeyUserID, in.Subject)
	return h
}

// reconstruct はバックエンドのレスポンスを読み切って Response に詰め直す。
func reconstruct(resp *http.Response, target string) (*Response, error) {
	// http.Transport は3桁以外のステータスを送信エラーにするため、ここに来るのは独自のRoundTripperの場合のみ
	if resp.StatusCode < 100 || resp.StatusCode > 999 {
		return nil, &ForwardError{
			Kind: ErrReconstructionFailed,
			URL:  target,
			Err:  &statusError{code: resp.StatusCode},
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTransportTimeout(err) {
			return nil, &ForwardError{Kind: ErrUnreachable, URL: target, Err: err}
		}
		return nil, &ForwardError{Kind: ErrReconstructionFailed, URL: target, Err: err}
	}

	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	removeHopHeaders(header)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

// isTransportTimeout はボディ読み込み中のタイムアウトや呼び出し元の切断かどうかを判定する。
func isTransportTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// removeHopHeaders はホップバイホップヘッダーと、Connectionヘッダーで
// 列挙されたヘッダーを取り除く。
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
