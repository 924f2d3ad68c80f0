// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"encoding/json"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Upsert は外部ID（uuid）をキーにユーザーを作成または更新する。
	// 一意制約に対してアトミックに動作し、重複レコードを作らない。
	Upsert(ctx context.Context, externalID, username, email string) (*model.User, error)

	// FindByUUID は外部IDでユーザーを取得する。見つからない場合はnilを返す。
	FindByUUID(ctx context.Context, externalID string) (*model.User, error)

	// FindByID は内部IDでユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。1ユーザーが複数のセッションを持つことを許可する。
	Create(ctx context.Context, session *model.Session) error
	// FindValid は有効期限内のセッションと所有ユーザーを取得する。
	// 存在しない場合と期限切れの場合はいずれもnil, nil, nilを返す。
	FindValid(ctx context.Context, token string) (*model.Session, *model.User, error)
	// DeleteByToken は指定トークンのセッションを削除する。該当行がなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteExpired は期限切れのセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// KVRepository はユーザー単位のキーバリューストアの永続化インターフェース。
type KVRepository interface {
	// Get は値を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, userID, key string) (*model.KVEntry, error)
	// Set は値をUPSERTする。
	Set(ctx context.Context, userID, key string, value json.RawMessage) (*model.KVEntry, error)
	// Delete は値を削除する。該当行がなくてもエラーにしない。
	Delete(ctx context.Context, userID, key string) error
	// ListKeys はglobパターン（*と?）に一致するキーを昇順で返す。
	ListKeys(ctx context.Context, userID, pattern string, limit int) ([]string, error)
}

// ResumeRepository は履歴書メタデータの永続化インターフェース。
type ResumeRepository interface {
	// Create はメタデータを作成する。
	Create(ctx context.Context, resume *model.Resume) error
	// FindByID は所有者が一致する履歴書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Resume, error)
	// ListByUserID はユーザーの履歴書を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Resume, error)
	// Delete は所有者が一致する履歴書を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}
