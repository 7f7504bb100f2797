package httpclient

import (
	"errors"
	"fmt"
)

// 転送失敗のセンチネルエラー。errors.Is で判定する。
var (
	// ErrBodyTooLarge はリクエストボディが上限を超えたことを表す。
	ErrBodyTooLarge = errors.New("リクエストボディが上限を超えています")
	// ErrUnreachable はバックエンドと通信できなかったことを表す。
	ErrUnreachable = errors.New("バックエンドに到達できません")
	// ErrReconstructionFailed はバックエンドのレスポンスを再構築できなかったことを表す。
	ErrReconstructionFailed = errors.New("レスポンスの再構築に失敗しました")
	// ErrInvalidRequest は受信したリクエストから転送リクエストを組み立てられないことを表す。
	ErrInvalidRequest = errors.New("転送リクエストを組み立てられません")
)

// ForwardError は転送処理の失敗を表す。
type ForwardError struct {
	// Kind は失敗の分類を表すセンチネルエラー。
	Kind error
	// URL は転送先URL。ネットワーク送信前に失敗した場合は空。
	URL string
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *ForwardError) Error() string {
	msg := e.Kind.Error()
	if e.URL != "" {
		msg = fmt.Sprintf("%s: url=%s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap は分類と原因のエラーを返す。
func (e *ForwardError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// statusError はバックエンドが不正なステータスコードを返したことを表す。
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("不正なステータスコード: %d", e.code)
}
