package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// PostgresKVRepo はPostgreSQLを使用したキーバリューリポジトリ。
// すべてのクエリはuser_idで絞り込み、他ユーザーのキーには触れない。
type PostgresKVRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresKVRepo はPostgresKVRepoを生成する。
func NewPostgresKVRepo(db *sql.DB) *PostgresKVRepo {
	return &PostgresKVRepo{db: db, now: time.Now}
}

// Get は値を取得する。見つからない場合はnilを返す。
func (r *PostgresKVRepo) Get(ctx context.Context, userID, key string) (*model.KVEntry, error) {
	entry := &model.KVEntry{}
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, key, value, updated_at FROM kv_store
		 WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&entry.UserID, &entry.Key, &value, &entry.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv entry: %w", err)
	}

	entry.Value = json.RawMessage(value)
	return entry, nil
}

// Set は値をUPSERTする。
func (r *PostgresKVRepo) Set(ctx context.Context, userID, key string, value json.RawMessage) (*model.KVEntry, error) {
	now := r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_store (user_id, key, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		userID, key, []byte(value), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set kv entry: %w", err)
	}

	return &model.KVEntry{
		UserID:    userID,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}, nil
}

// Delete は値を削除する。
func (r *PostgresKVRepo) Delete(ctx context.Context, userID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE user_id = $1 AND key = $2`,
		userID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// ListKeys はglobパターンに一致するキーを昇順で返す。
// パターンはプレースホルダ経由で渡し、SQLには連結しない。
func (r *PostgresKVRepo) ListKeys(ctx context.Context, userID, pattern string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key FROM kv_store
		 WHERE user_id = $1 AND key LIKE $2 ESCAPE '\'
		 ORDER BY key ASC
		 LIMIT $3`,
		userID, GlobToLike(pattern), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan kv key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv keys: %w", err)
	}
	return keys, nil
}

// compile-time interface check
var _ KVRepository = (*PostgresKVRepo)(nil)
