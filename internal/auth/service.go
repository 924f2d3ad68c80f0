// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/striver-24/ai-resume-analyser/internal/model"
	"github.com/striver-24/ai-resume-analyser/internal/repository"
	"github.com/striver-24/ai-resume-analyser/internal/security"
	"github.com/striver-24/ai-resume-analyser/internal/statetoken"
)

const (
	// DefaultSignInRedirect はサインイン時にnextが指定されない場合の遷移先。
	DefaultSignInRedirect = "/"
	// DefaultCallbackRedirect はstateから遷移先を取り出せない場合の遷移先。
	DefaultCallbackRedirect = "/upload"

	maxUsernameLength = 255
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string `validate:"required,max=255"`
	Email          string `validate:"required,email,max=320"`
	Name           string
	Provider       string // "google"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// StateCodec はstateトークンの生成と検証のインターフェース。
type StateCodec interface {
	Generate(redirectPath string) (string, error)
	Verify(token string) *statetoken.Payload
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
// userRepo、sessionRepoがnilの場合はDB未設定として扱う。
type Service struct {
	oauth       OAuthProvider
	state       StateCodec
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig

	validate  *validator.Validate
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	state StateCodec,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		state:       state,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		validate:    validator.New(),
		sanitizer:   security.NewTextSanitizer(),
		now:         time.Now,
	}
}

// SignInURL はnextを遷移先とするstateトークンを発行し、OAuth認証URLを生成する。
// nextが同一オリジンのパスでない場合は"/"に置き換える。
func (s *Service) SignInURL(next string) (string, error) {
	redirect := statetoken.SafeRedirectPath(next, DefaultSignInRedirect)

	state, err := s.state.Generate(redirect)
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	return s.oauth.GetLoginURL(state), nil
}

// RedirectTarget はstateトークンを検証し、ログイン後の遷移先を返す。
// 改ざん・期限切れ・不正なパスの場合は"/upload"を返す。
func (s *Service) RedirectTarget(state string) string {
	payload := s.state.Verify(state)
	if payload == nil {
		return DefaultCallbackRedirect
	}
	return statetoken.SafeRedirectPath(payload.RedirectTo, DefaultCallbackRedirect)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初回ログインのユーザーは作成し、既存ユーザーは名前とメールアドレスを更新する。
// メールアドレスが取得できない場合はユーザーもセッションも作成しない。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		var upstream *model.UpstreamAuthError
		if errors.As(err, &upstream) {
			return nil, nil, err
		}
		return nil, nil, model.NewUpstreamAuthError(model.ReasonTokenExchangeFailed, err)
	}
	if userInfo == nil {
		return nil, nil, model.NewUpstreamAuthError(model.ReasonUserInfoFailed, errors.New("provider returned no user info"))
	}

	// 2. ユーザー情報の検証
	if strings.TrimSpace(userInfo.Email) == "" {
		return nil, nil, model.NewUpstreamAuthError(model.ReasonNoEmail, errors.New("identity has no email"))
	}
	if err := s.validate.Struct(userInfo); err != nil {
		return nil, nil, model.NewUpstreamAuthError(model.ReasonInvalidIdentity, err)
	}

	if err := s.requireStore(); err != nil {
		return nil, nil, err
	}

	// 3. ユーザーをUPSERT
	user, err := s.userRepo.Upsert(ctx, userInfo.ProviderUserID, s.displayName(userInfo), userInfo.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)

	return session, user, nil
}

// Logout はセッションを破棄する。存在しないセッションの場合もエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.requireStore(); err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session", maskToken(token)))
	return nil
}

// CurrentUser はセッショントークンから現在のユーザーを取得する。
// セッションが存在しないか期限切れの場合はnil, nilを返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	_, user, err := s.sessionRepo.FindValid(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return user, nil
}

// requireStore はDBが設定されているかを確認する。
func (s *Service) requireStore() error {
	if s.userRepo == nil || s.sessionRepo == nil {
		return &model.ConfigurationError{Missing: []string{"DATABASE_URL"}}
	}
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// displayName はプロバイダーの表示名からHTMLを除去する。
// 空になった場合はメールアドレスのローカル部を使う。
func (s *Service) displayName(info *OAuthUserInfo) string {
	name := s.sanitizer.PlainText(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(info.Email, "@")
	}
	return security.Truncate(name, maxUsernameLength)
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// maskToken はログ出力用にトークンの先頭のみを残す。
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}
