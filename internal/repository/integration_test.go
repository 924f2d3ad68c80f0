//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/striver-24/ai-resume-analyser/internal/database"
	"github.com/striver-24/ai-resume-analyser/internal/model"
	"github.com/striver-24/ai-resume-analyser/internal/repository"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "resume_analyser_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/resume_analyser_test?sslmode=disable", host, port.Port())

	if err := database.RunMigrations(dsn); err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// 同じ外部IDでの同時Upsertが1行に収束することを検証
func TestUserRepo_UpsertConcurrent(t *testing.T) {
	ctx := context.Background()
	users := repository.NewPostgresUserRepo(openDB(t))
	externalID := "google-" + uuid.NewString()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := users.Upsert(ctx, externalID, fmt.Sprintf("name-%d", i), "user@example.com")
			errs[i] = err
			if u != nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "全てのUpsertが同じユーザーIDを返す")
	}

	found, err := users.FindByUUID(ctx, externalID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ids[0], found.ID)
}

// 再ログインで名前とメールが更新され、IDとcreated_atは維持されることを検証
func TestUserRepo_UpsertUpdatesProfile(t *testing.T) {
	ctx := context.Background()
	users := repository.NewPostgresUserRepo(openDB(t))
	externalID := "google-" + uuid.NewString()

	first, err := users.Upsert(ctx, externalID, "Old Name", "old@example.com")
	require.NoError(t, err)

	second, err := users.Upsert(ctx, externalID, "New Name", "new@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, "New Name", second.Username)
	assert.Equal(t, "new@example.com", second.Email)
}

// 期限切れセッションが見つからない扱いになり、DeleteExpiredで削除されることを検証
func TestSessionRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	users := repository.NewPostgresUserRepo(db)
	sessions := repository.NewPostgresSessionRepo(db)

	user, err := users.Upsert(ctx, "google-"+uuid.NewString(), "Session User", "s@example.com")
	require.NoError(t, err)

	now := time.Now()
	valid := &model.Session{Token: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{Token: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, sessions.Create(ctx, valid))
	require.NoError(t, sessions.Create(ctx, expired))

	s, u, err := sessions.FindValid(ctx, valid.Token)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, user.ID, u.ID)

	s, u, err = sessions.FindValid(ctx, expired.Token)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Nil(t, u)

	deleted, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	require.NoError(t, sessions.DeleteByToken(ctx, valid.Token))
	require.NoError(t, sessions.DeleteByToken(ctx, valid.Token), "2回目の削除もエラーにならない")

	s, _, err = sessions.FindValid(ctx, valid.Token)
	require.NoError(t, err)
	assert.Nil(t, s)
}

// expires_atと現在時刻が等しいセッションは無効で、DeleteExpiredの対象になることを検証
func TestSessionRepo_ExpiresAtBoundary(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	users := repository.NewPostgresUserRepo(db)
	sessions := repository.NewPostgresSessionRepo(db)

	user, err := users.Upsert(ctx, "google-"+uuid.NewString(), "Boundary User", "b@example.com")
	require.NoError(t, err)

	// TIMESTAMPTZはマイクロ秒精度のため揃えておく
	expiresAt := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	session := &model.Session{Token: uuid.NewString(), UserID: user.ID, ExpiresAt: expiresAt, CreatedAt: expiresAt.Add(-time.Hour)}
	require.NoError(t, sessions.Create(ctx, session))

	repository.SetSessionClock(sessions, func() time.Time { return expiresAt.Add(-time.Microsecond) })
	s, _, err := sessions.FindValid(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, s, "期限の直前は有効")

	repository.SetSessionClock(sessions, func() time.Time { return expiresAt })
	s, u, err := sessions.FindValid(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, s, "期限ちょうどは無効")
	assert.Nil(t, u)

	deleted, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE token = $1`, session.Token).Scan(&count))
	assert.Equal(t, 0, count, "期限ちょうどのセッションも削除される")
}

// LIKEメタ文字を含むキーがglobで正しく絞り込まれることを検証
func TestKVRepo_ListKeysEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	users := repository.NewPostgresUserRepo(db)
	kv := repository.NewPostgresKVRepo(db)

	user, err := users.Upsert(ctx, "google-"+uuid.NewString(), "KV User", "kv@example.com")
	require.NoError(t, err)

	for _, key := range []string{"a_b", "axb", "100%", "1000"} {
		_, err := kv.Set(ctx, user.ID, key, json.RawMessage(`true`))
		require.NoError(t, err)
	}

	keys, err := kv.ListKeys(ctx, user.ID, "a_*", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, keys)

	keys, err = kv.ListKeys(ctx, user.ID, "100%", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"100%"}, keys)

	keys, err = kv.ListKeys(ctx, user.ID, "a?b", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b", "axb"}, keys)
}
