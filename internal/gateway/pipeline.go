package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nao1215/tokengate/pkg/httpclient"
	"github.com/nao1215/tokengate/pkg/token"
)

// Stage はパイプライン上でリクエストが到達した段階。
type Stage int

const (
	// StageReceived はリクエストを受信した段階。
	StageReceived Stage = iota
	// StageAuthenticated はトークンの検証が済んだ段階。
	StageAuthenticated
	// StageRouted は転送先のベースURLが決まった段階。
	StageRouted
	// StageForwarded はバックエンドのレスポンスを受け取った段階。
	StageForwarded
	// StageResponded はレスポンスを呼び出し元に書き出した段階。
	StageResponded
)

// String は段階名を返す。
func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageAuthenticated:
		return "authenticated"
	case StageRouted:
		return "routed"
	case StageForwarded:
		return "forwarded"
	case StageResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// Reason は失敗の種類。呼び出し元にはステータスコードとしてのみ見える。
type Reason int

const (
	// ReasonUnauthorized はトークンが無い・不正・期限切れ・署名不一致のいずれか。
	ReasonUnauthorized Reason = iota + 1
	// ReasonNotFound はサービス名が登録されていない。
	ReasonNotFound
	// ReasonBadRequest はリクエストボディが上限を超えた、または読み込めない。
	ReasonBadRequest
	// ReasonBadGateway はバックエンドと通信できない。
	ReasonBadGateway
	// ReasonInternalError はバックエンドのレスポンスを再構築できない。
	ReasonInternalError
)

// Status は失敗の種類に対応するHTTPステータスコードを返す。
func (r Reason) Status() int {
	switch r {
	case ReasonUnauthorized:
		return http.StatusUnauthorized
	case ReasonNotFound:
		return http.StatusNotFound
	case ReasonBadRequest:
		return http.StatusBadRequest
	case ReasonBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// String は失敗の種類名を返す。メトリクスのラベルにも使う。
func (r Reason) String() string {
	switch r {
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonNotFound:
		return "not_found"
	case ReasonBadRequest:
		return "bad_request"
	case ReasonBadGateway:
		return "bad_gateway"
	default:
		return "internal_error"
	}
}

// message はクライアントに返す汎用のエラーメッセージ。
// 内部の失敗分類はログにのみ出力し、ここでは区別しない。
func (r Reason) message() string {
	switch r {
	case ReasonUnauthorized:
		return "認証に失敗しました"
	case ReasonNotFound:
		return "サービスが見つかりません"
	case ReasonBadRequest:
		return "リクエストが不正です"
	case ReasonBadGateway:
		return "内部サービスとの通信に失敗しました"
	default:
		return "内部サーバーエラーが発生しました"
	}
}

// Failure はパイプラインの終端状態 Failed(reason) を表す。
type Failure struct {
	// Stage は失敗した時点で到達していた段階。
	Stage Stage
	// Reason は失敗の種類。
	Reason Reason
	// Err は原因となったエラー。運用者向けの診断にのみ使う。
	Err error
}

// Error はエラーメッセージを返す。
func (f *Failure) Error() string {
	return fmt.Sprintf("%s (stage=%s): %v", f.Reason, f.Stage, f.Err)
}

// Unwrap は原因のエラーを返す。
func (f *Failure) Unwrap() error {
	return f.Err
}

// Inbound はTokenSourceが受信したリクエストから取り出した内容。
// 1つのリクエストの処理中にのみ使用し、他のリクエストと共有しない。
type Inbound struct {
	// Token は取り出したBearerトークン。
	Token string
	// Service はルーティング対象のサービス名。
	Service string
	// Subpath はサービス名より後ろのパス。
	Subpath string
	// RawQuery はクエリ文字列。
	RawQuery string
	// Method はHTTPメソッド。
	Method string
	// Header は受信したリクエストヘッダー。
	Header http.Header
	// Body はリクエストボディ。
	Body io.Reader
	// ContentLength はボディ長。不明な場合は-1。
	ContentLength int64
	// RemoteAddr は呼び出し元のアドレス。
	RemoteAddr string
	// TLS はTLS経由で受信したかどうか。
	TLS bool
}

// Resolver はサービス名をベースURLに解決する。
type Resolver interface {
	Resolve(name string) (string, error)
}

// Forwarder はリクエストをバックエンドに転送する。
type Forwarder interface {
	Forward(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// Pipeline は認証・ルーティング・転送を順に行う。
// 状態を持たないため、複数のリクエストから同時に使用できる。
type Pipeline struct {
	// secret はトークン検証用の共有シークレット。
	secret string
	// resolver はサービスレジストリ。
	resolver Resolver
	// forwarder はバックエンドへの転送を行うクライアント。
	forwarder Forwarder
}

// NewPipeline は新しいPipelineを生成する。
func NewPipeline(secret string, resolver Resolver, forwarder Forwarder) *Pipeline {
	return &Pipeline{
		secret:    secret,
		resolver:  resolver,
		forwarder: forwarder,
	}
}

// Run はリクエストを最初に失敗した段階まで処理する。
// 成功した場合はバックエンドのレスポンスを、失敗した場合は Failure を返す。
func (p *Pipeline) Run(ctx context.Context, in *Inbound) (*httpclient.Response, *Failure) {
	claims, err := token.Verify(in.Token, p.secret)
	if err != nil {
		return nil, &Failure{Stage: StageReceived, Reason: ReasonUnauthorized, Err: err}
	}

	baseURL, err := p.resolver.Resolve(in.Service)
	if err != nil {
		return nil, &Failure{Stage: StageAuthenticated, Reason: ReasonNotFound, Err: err}
	}

	resp, err := p.forwarder.Forward(ctx, &httpclient.Request{
		BaseURL:       baseURL,
		Subpath:       in.Subpath,
		RawQuery:      in.RawQuery,
		Method:        in.Method,
		Subject:       claims.Subject,
		Header:        in.Header,
		Body:          in.Body,
		ContentLength: in.ContentLength,
		RemoteAddr:    in.RemoteAddr,
		TLS:           in.TLS,
	})
	if err != nil {
		return nil, &Failure{Stage: StageRouted, Reason: forwardReason(err), Err: err}
	}
	return resp, nil
}

// forwardReason は転送エラーを失敗の種類に振り分ける。
func forwardReason(err error) Reason {
	switch {
	case errors.Is(err, httpclient.ErrBodyTooLarge), errors.Is(err, httpclient.ErrInvalidRequest):
		return ReasonBadRequest
	case errors.Is(err, httpclient.ErrUnreachable):
		return ReasonBadGateway
	default:
		return ReasonInternalError
	}
}

// extractFailure はトークンの取り出しに失敗した場合の Failure を返す。
func extractFailure(err error) *Failure {
	if errors.Is(err, httpclient.ErrBodyTooLarge) || errors.Is(err, httpclient.ErrInvalidRequest) {
		return &Failure{Stage: StageReceived, Reason: ReasonBadRequest, Err: err}
	}
	return &Failure{Stage: StageReceived, Reason: ReasonUnauthorized, Err: err}
}
