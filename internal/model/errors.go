package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAction     = "INVALID_ACTION"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeSignInFailed      = "SIGNIN_FAILED"
	ErrCodeInvalidKey        = "INVALID_KEY"
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeKeyNotFound       = "KEY_NOT_FOUND"
	ErrCodeResumeNotFound    = "RESUME_NOT_FOUND"
	ErrCodeResumeTooLarge    = "RESUME_TOO_LARGE"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeMissingFile       = "MISSING_FILE"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// 認証フローのエラー理由。コールバックのリダイレクト先に?error=として付与される。
const (
	ReasonTokenExchangeFailed = "token_exchange_failed"
	ReasonUserInfoFailed      = "userinfo_failed"
	ReasonNoEmail             = "no_email"
	ReasonInvalidIdentity     = "invalid_identity"
	ReasonMissingCode         = "missing_code"
	ReasonServerError         = "server_error"
	ReasonProviderError       = "provider_error"
)

// UpstreamAuthError はOAuthプロバイダーとのやり取りに失敗したことを表す。
// 認可コードの拒否、通信エラー、メールアドレス欠落のいずれか。
type UpstreamAuthError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream auth error (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("upstream auth error (%s)", e.Reason)
}

// Unwrap は原因エラーを返す。
func (e *UpstreamAuthError) Unwrap() error {
	return e.Err
}

// NewUpstreamAuthError はUpstreamAuthErrorを生成する。
func NewUpstreamAuthError(reason string, err error) *UpstreamAuthError {
	return &UpstreamAuthError{Reason: reason, Err: err}
}

// ConfigurationError は必須の環境設定が欠けていることを表す。
type ConfigurationError struct {
	Missing []string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("required configuration is not set: %s", strings.Join(e.Missing, ", "))
}

// ValidationError はリクエスト入力の検証エラーを表す。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewInvalidActionError は未知のactionが指定された場合のエラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("無効なactionです: %q", action),
		Category: "validation",
		Action:   "action には signin、callback、signout、status のいずれかを指定してください。",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドの場合のエラーを生成する。
func NewMethodNotAllowedError(method, action string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("%s は action=%s で使用できません。", method, action),
		Category: "validation",
		Action:   "Allowヘッダーに示されたメソッドを使用してください。",
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

// NewSignInFailedError はサインイン開始に失敗した場合のエラーを生成する。
func NewSignInFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSignInFailed,
		Message:  "サインインを開始できませんでした。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidKeyError は無効なKVキーのエラーを生成する。
func NewInvalidKeyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKey,
		Message:  fmt.Sprintf("無効なキーです: %s", reason),
		Category: "validation",
		Action:   "キーは1〜256文字の印字可能文字で指定してください。",
	}
}

// NewInvalidValueError は無効なKV値のエラーを生成する。
func NewInvalidValueError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidValue,
		Message:  "値はJSONとして解釈できる必要があります。",
		Category: "validation",
		Action:   "リクエストボディを {\"value\": ...} の形式で送信してください。",
	}
}

// NewKeyNotFoundError はKVキーが存在しない場合のエラーを生成する。
func NewKeyNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeKeyNotFound,
		Message:  fmt.Sprintf("指定されたキーが見つかりません: %s", key),
		Category: "storage",
		Action:   "キーを確認してください。",
	}
}

// NewResumeNotFoundError は履歴書が見つからない場合のエラーを生成する。
func NewResumeNotFoundError(resumeID string) *APIError {
	return &APIError{
		Code:     ErrCodeResumeNotFound,
		Message:  fmt.Sprintf("指定された履歴書が見つかりません: %s", resumeID),
		Category: "storage",
		Action:   "履歴書IDを確認してください。",
	}
}

// NewResumeTooLargeError はアップロードサイズ超過のエラーを生成する。
func NewResumeTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeResumeTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "ファイルサイズを小さくしてから再度アップロードしてください。",
	}
}

// NewUnsupportedFormatError は対応していないファイル形式のエラーを生成する。
func NewUnsupportedFormatError(mime string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("対応していないファイル形式です: %s", mime),
		Category: "validation",
		Action:   "PDF、DOCX、またはテキストファイルをアップロードしてください。",
	}
}

// NewMissingFileError はmultipartにファイルが含まれない場合のエラーを生成する。
func NewMissingFileError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingFile,
		Message:  "ファイルが指定されていません。",
		Category: "validation",
		Action:   "file フィールドに履歴書ファイルを指定してください。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidParameterError はValidationErrorを統一エラーフォーマットに変換する。
func NewInvalidParameterError(verr *ValidationError) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  verr.Error(),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
