// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/striver-24/ai-resume-analyser/internal/metrics"
	"github.com/striver-24/ai-resume-analyser/internal/middleware"
	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// 認証エンドポイントのaction
const (
	ActionSignIn   = "signin"
	ActionCallback = "callback"
	ActionSignOut  = "signout"
	ActionStatus   = "status"
)

// actionMethods はactionごとに許可するHTTPメソッド。
var actionMethods = map[string]string{
	ActionSignIn:   http.MethodGet,
	ActionCallback: http.MethodGet,
	ActionSignOut:  http.MethodPost,
	ActionStatus:   http.MethodGet,
}

// providerErrorPattern はプロバイダーが返すerrorパラメータとして受け付ける形式。
// これ以外の値はリダイレクト先に反映しない。
var providerErrorPattern = regexp.MustCompile(`^[a-z_]{1,64}$`)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignInURL(next string) (string, error)
	HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error)
	RedirectTarget(state string) string
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// AuthRecorder は認証フローのメトリクスを記録するインターフェース。
type AuthRecorder interface {
	RecordSignIn()
	RecordCallback(result string)
	RecordSignOut()
	RecordStatus(authenticated bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string // リダイレクト先の基点。空の場合は同一オリジンの相対パス
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はactionクエリパラメータで処理を振り分ける認証エンドポイント。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder AuthRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合は記録しない。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder AuthRecorder) *AuthHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

// statusUser はstatusで返す公開ユーザー情報。
type statusUser struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// statusResponse はaction=statusのレスポンス。
type statusResponse struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	User            *statusUser `json:"user"`
	Error           string      `json:"error,omitempty"`
}

// signOutResponse はaction=signoutのレスポンス。
type signOutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServeHTTP はactionとHTTPメソッドを検証し、各処理に振り分ける。
//
//	GET  /auth?action=signin&next=<path>
//	GET  /auth?action=callback&code=<code>&state=<state>
//	POST /auth?action=signout
//	GET  /auth?action=status
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	action := r.URL.Query().Get("action")
	method, ok := actionMethods[action]
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidActionError(action))
		return
	}
	if r.Method != method {
		w.Header().Set("Allow", method+", "+http.MethodOptions)
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError(r.Method, action))
		return
	}

	switch action {
	case ActionSignIn:
		h.SignIn(w, r)
	case ActionCallback:
		h.Callback(w, r)
	case ActionSignOut:
		h.SignOut(w, r)
	case ActionStatus:
		h.Status(w, r)
	}
}

// SignIn はstateトークンを発行してOAuthプロバイダーへリダイレクトする。
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.service.SignInURL(r.URL.Query().Get("next"))
	if err != nil {
		slog.Error("failed to build sign-in url", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewSignInFailedError())
		return
	}

	h.recorder.RecordSignIn()
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理し、セッションCookieを設定してリダイレクトする。
// 失敗時も500は返さず、エラー理由を付けてフロントエンドへリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 1. プロバイダー側のエラー（ユーザーによる拒否など）は認可コードを交換しない
	if providerErr := q.Get("error"); providerErr != "" {
		if !providerErrorPattern.MatchString(providerErr) {
			providerErr = model.ReasonProviderError
		}
		slog.Warn("oauth provider returned error", slog.String("reason", providerErr))
		h.recorder.RecordCallback(metrics.CallbackDenied)
		h.redirectWithError(w, r, providerErr)
		return
	}

	// 2. 認可コードの取得
	code := q.Get("code")
	if code == "" {
		h.recorder.RecordCallback(metrics.CallbackError)
		h.redirectWithError(w, r, model.ReasonMissingCode)
		return
	}

	// 3. 認証処理
	session, user, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		reason := model.ReasonServerError
		var upstream *model.UpstreamAuthError
		if errors.As(err, &upstream) {
			reason = upstream.Reason
			slog.Warn("oauth callback rejected",
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Error("oauth callback failed", slog.String("error", err.Error()))
		}
		h.recorder.RecordCallback(metrics.CallbackError)
		h.redirectWithError(w, r, reason)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.Token, h.config.SessionMaxAge)

	// 5. stateに埋め込まれた遷移先へリダイレクト
	target := h.service.RedirectTarget(q.Get("state"))
	h.recorder.RecordCallback(metrics.CallbackSuccess)
	slog.Info("oauth callback completed",
		slog.String("user_id", user.ID),
		slog.String("redirect_to", target),
	)
	http.Redirect(w, r, h.config.FrontendURL+target, http.StatusFound)
}

// SignOut はセッションを破棄し、Cookieをクリアする。
// セッションの削除に失敗してもCookieはクリアし、成功として応答する。
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	message := "Signed out successfully"

	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			message = "Signed out"
		}
	}

	h.setSessionCookie(w, "", -1)
	h.recorder.RecordSignOut()
	writeJSON(w, http.StatusOK, signOutResponse{Success: true, Message: message})
}

// Status は現在のログイン状態を返す。内部エラー時も200で未認証として応答する。
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		h.writeStatus(w, nil, "")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		var cfgErr *model.ConfigurationError
		if errors.As(err, &cfgErr) {
			slog.Warn("session store is not configured")
			h.writeStatus(w, nil, "")
			return
		}
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		h.writeStatus(w, nil, "Failed to check authentication status")
		return
	}

	h.writeStatus(w, user, "")
}

func (h *AuthHandler) writeStatus(w http.ResponseWriter, user *model.User, errHint string) {
	resp := statusResponse{Error: errHint}
	if user != nil {
		resp.IsAuthenticated = true
		resp.User = &statusUser{
			UUID:     user.UUID,
			Username: user.Username,
			Email:    user.Email,
		}
	}
	h.recorder.RecordStatus(resp.IsAuthenticated)
	writeJSON(w, http.StatusOK, resp)
}

// redirectWithError はエラー理由をクエリに付けてフロントエンドのルートへリダイレクトする。
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.config.FrontendURL + "/?error=" + url.QueryEscape(reason)
	http.Redirect(w, r, target, http.StatusFound)
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   strings.TrimSpace(h.config.CookieDomain),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
