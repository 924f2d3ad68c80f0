package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

const resumeColumns = `id, user_id, file_name, content_type, size_bytes, object_key, created_at`

// PostgresResumeRepo はPostgreSQLを使用した履歴書メタデータリポジトリ。
// 所有者の確認はWHERE句のuser_idで行う。
type PostgresResumeRepo struct {
	db *sql.DB
}

// NewPostgresResumeRepo はPostgresResumeRepoを生成する。
func NewPostgresResumeRepo(db *sql.DB) *PostgresResumeRepo {
	return &PostgresResumeRepo{db: db}
}

// Create は履歴書メタデータを作成する。
func (r *PostgresResumeRepo) Create(ctx context.Context, resume *model.Resume) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resumes (`+resumeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resume.ID, resume.UserID, resume.FileName, resume.ContentType,
		resume.SizeBytes, resume.ObjectKey, resume.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create resume: %w", err)
	}
	return nil
}

// FindByID は所有者が一致する履歴書を取得する。見つからない場合はnilを返す。
func (r *PostgresResumeRepo) FindByID(ctx context.Context, userID, id string) (*model.Resume, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	resume, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resume: %w", err)
	}
	return resume, nil
}

// ListByUserID はユーザーの履歴書を新しい順に返す。
func (r *PostgresResumeRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Resume, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resumeColumns+` FROM resumes
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	defer rows.Close()

	resumes := []*model.Resume{}
	for rows.Next() {
		resume, err := scanResume(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resume: %w", err)
		}
		resumes = append(resumes, resume)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resumes: %w", err)
	}
	return resumes, nil
}

// Delete は所有者が一致する履歴書を削除する。
func (r *PostgresResumeRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM resumes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete resume: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func scanResume(row rowScanner) (*model.Resume, error) {
	resume := &model.Resume{}
	if err := row.Scan(
		&resume.ID, &resume.UserID, &resume.FileName, &resume.ContentType,
		&resume.SizeBytes, &resume.ObjectKey, &resume.CreatedAt,
	); err != nil {
		return nil, err
	}
	return resume, nil
}

// compile-time interface check
var _ ResumeRepository = (*PostgresResumeRepo)(nil)
