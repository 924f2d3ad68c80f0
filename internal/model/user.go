// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// UUIDはOAuthプロバイダーが発行する外部識別子（Googleのsub）で、一意制約を持つ。
type User struct {
	ID        string
	UUID      string
	Username  string
	Email     string // 空文字はメールアドレス未登録を表す
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// Tokenはクッキーに格納される不透明な値。
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsValidAt は指定時刻においてセッションが有効かどうかを返す。
// 有効期限ちょうどの時刻は期限切れとして扱う。
func (s *Session) IsValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
