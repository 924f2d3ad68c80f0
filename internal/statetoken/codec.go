// Package statetoken はOAuthのstateパラメータに埋め込む署名付きトークンを提供する。
// トークンはサーバー側に保存せず、HMAC署名と有効期限のみで正当性を判定する。
package statetoken

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はstateトークンのデフォルト有効期間。
const DefaultTTL = 10 * time.Minute

const issuer = "resume-analyser/oauth-state"

// Payload はstateトークンから取り出した内容。
type Payload struct {
	RedirectTo string
}

// claims はstateトークンのJWTクレーム。
type claims struct {
	jwt.RegisteredClaims
	RedirectTo string `json:"redirect_to"`
}

// Codec はstateトークンの生成と検証を行う。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option はCodecの設定を変更する。
type Option func(*Codec)

// WithTTL はトークンの有効期間を設定する。
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec はCodecを生成する。secretが空の場合はエラーを返す。
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("state token secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate はリダイレクト先パスと発行時刻を含む署名付きトークンを生成する。
func (c *Codec) Generate(redirectPath string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		RedirectTo: redirectPath,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、正当な場合のみPayloadを返す。
// 形式不正、署名不一致、期限切れのいずれの場合もnilを返す。
// base64の未使用ビットが0でないセグメントも形式不正として扱う。
func (c *Codec) Verify(token string) *Payload {
	if token == "" {
		return nil
	}

	parsed := &claims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil
	}

	return &Payload{RedirectTo: parsed.RedirectTo}
}

// SafeRedirectPath はpathが同一オリジン内の絶対パスであればそのまま返し、
// そうでなければfallbackを返す。オープンリダイレクトを防ぐ。
func SafeRedirectPath(path, fallback string) string {
	if path == "" || !strings.HasPrefix(path, "/") {
		return fallback
	}
	// "//host" や "/\host" はブラウザによって別オリジンとして解釈される
	if len(path) > 1 && (path[1] == '/' || path[1] == '\\') {
		return fallback
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return fallback
		}
	}
	return path
}
