// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Messageに内部エラーの内容を埋め込んではならない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, blog, analytics, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingSlug        = "MISSING_SLUG"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeInvalidEventType   = "INVALID_EVENT_TYPE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSlugConflict       = "SLUG_CONFLICT"
	ErrCodeCategoryNotFound   = "CATEGORY_NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFTokenInvalid   = "CSRF_TOKEN_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewMissingSlugError はスラッグ未指定エラーを生成する。
func NewMissingSlugError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingSlug,
		Message:  "記事のスラッグが指定されていません。",
		Category: "validation",
		Action:   "URLに記事のスラッグを含めてください。",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
// 存在しない記事と下書き記事は区別しない。
func NewPostNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  "指定された記事が見つかりません。",
		Category: "blog",
		Action:   "記事のURLを確認してください。",
	}
}

// maxEchoedInputRunes はエラーメッセージに含めるクライアント入力の最大文字数。
const maxEchoedInputRunes = 32

// NewInvalidEventTypeError は未知のイベント種別エラーを生成する。
// メッセージに含める種別は先頭maxEchoedInputRunes文字までに切り詰める。
func NewInvalidEventTypeError(eventType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEventType,
		Message:  fmt.Sprintf("無効なイベント種別です: %q", truncateRunes(eventType, maxEchoedInputRunes)),
		Category: "analytics",
		Action:   "イベント種別には pageview、scroll、product_click のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限を確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewSlugConflictError はスラッグ重複エラーを生成する。
func NewSlugConflictError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeSlugConflict,
		Message:  fmt.Sprintf("スラッグは既に使用されています: %s", slug),
		Category: "blog",
		Action:   "別のスラッグを指定してください。",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  "指定されたカテゴリが見つかりません。",
		Category: "blog",
		Action:   "カテゴリを確認してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 原因の詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// truncateRunes はsを先頭n文字に切り詰め、切り詰めた場合は末尾に"..."を付ける。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
