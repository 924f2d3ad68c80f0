package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{"id", "uuid", "username", "email", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// Upsertが1文のINSERT ... ON CONFLICTで実行され、RETURNINGの結果を返すことを検証
func TestPostgresUserRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	created := now.Add(-24 * time.Hour)

	repo := NewPostgresUserRepo(db)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(`INSERT INTO users .* ON CONFLICT \(uuid\) DO UPDATE .* RETURNING`).
		WithArgs(sqlmock.AnyArg(), "google-123", "Test User", "test@example.com", now).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "google-123", "Test User", "test@example.com", created, now))

	user, err := repo.Upsert(context.Background(), "google-123", "Test User", "test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "google-123", user.UUID)
	assert.Equal(t, "Test User", user.Username)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, created, user.CreatedAt, "既存ユーザーのcreated_atはRETURNINGの値を使う")
	assert.Equal(t, now, user.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// メールアドレスが空の場合にNULLとして書き込まれることを検証
func TestPostgresUserRepo_Upsert_EmptyEmailIsNull(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	repo := NewPostgresUserRepo(db)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "google-123", "name", nil, now).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "google-123", "name", nil, now, now))

	user, err := repo.Upsert(context.Background(), "google-123", "name", "")
	require.NoError(t, err)
	assert.Empty(t, user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// DBエラーがラップされて返されることを検証
func TestPostgresUserRepo_Upsert_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(dbErr)

	user, err := NewPostgresUserRepo(db).Upsert(context.Background(), "google-123", "name", "a@example.com")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// FindByUUIDが存在しないユーザーに対してnil, nilを返すことを検証
func TestPostgresUserRepo_FindByUUID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE uuid = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	user, err := NewPostgresUserRepo(db).FindByUUID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// FindByIDが内部IDでユーザーを取得することを検証
func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "google-123", "Test User", "test@example.com", now, now))

	user, err := NewPostgresUserRepo(db).FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "google-123", user.UUID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
