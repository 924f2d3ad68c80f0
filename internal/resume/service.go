// Package resume は履歴書ファイルのアップロード、取得、削除を提供する。
// ファイル本体はオブジェクトストレージに、メタデータはPostgreSQLに保存する。
package resume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/striver-24/ai-resume-analyser/internal/model"
	"github.com/striver-24/ai-resume-analyser/internal/repository"
	"github.com/striver-24/ai-resume-analyser/internal/security"
	miniostore "github.com/striver-24/ai-resume-analyser/internal/storage/minio"
)

const (
	// DefaultMaxSize はアップロードサイズ上限の既定値（10 MiB）。
	DefaultMaxSize int64 = 10 << 20

	// sniffLen はファイル形式の判定に読む先頭バイト数。
	sniffLen = 3072

	defaultFileName   = "resume"
	maxFileNameLength = 255
)

// 受け付けるファイル形式
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeText = "text/plain"
)

var allowedContentTypes = []string{ContentTypePDF, ContentTypeDOCX, ContentTypeText}

// ObjectStore はファイル本体の保存先。minio.Clientが満たす。
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// UploadRecorder はアップロードを記録するインターフェース。
type UploadRecorder interface {
	RecordResumeUpload(sizeBytes int64)
}

// Service は履歴書に関するビジネスロジックを提供する。
type Service struct {
	repo      repository.ResumeRepository
	store     ObjectStore
	recorder  UploadRecorder
	maxSize   int64
	sanitizer *security.TextSanitizer
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。maxSizeが0以下の場合は既定値を使う。
// recorderはnilでもよい。
func NewService(repo repository.ResumeRepository, store ObjectStore, maxSize int64, recorder UploadRecorder) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{
		repo:      repo,
		store:     store,
		recorder:  recorder,
		maxSize:   maxSize,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// MaxSize はアップロードサイズの上限を返す。
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Upload はファイル形式とサイズを検証してから保存し、メタデータを返す。
// sizeはmultipartヘッダーが示すファイルサイズ。
func (s *Service) Upload(ctx context.Context, userID, fileName string, r io.Reader, size int64) (*model.Resume, error) {
	if size > s.maxSize {
		return nil, model.NewResumeTooLargeError(s.maxSize)
	}

	// 先頭を読んで形式を判定し、読んだ分は本文の前に戻す
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, model.NewMissingFileError()
	}

	contentType, ok := detectContentType(head)
	if !ok {
		return nil, model.NewUnsupportedFormatError(mimetype.Detect(head).String())
	}

	id := s.newID()
	resume := &model.Resume{
		ID:          id,
		UserID:      userID,
		FileName:    s.sanitizeFileName(fileName),
		ContentType: contentType,
		SizeBytes:   size,
		ObjectKey:   ObjectKey(userID, id),
		CreatedAt:   s.now(),
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if err := s.store.Put(ctx, resume.ObjectKey, body, size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store resume object: %w", err)
	}

	if err := s.repo.Create(ctx, resume); err != nil {
		// メタデータが保存できなかったオブジェクトは残さない
		if delErr := s.store.Delete(ctx, resume.ObjectKey); delErr != nil {
			slog.Warn("failed to remove orphaned resume object",
				slog.String("object_key", resume.ObjectKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to save resume metadata: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordResumeUpload(size)
	}

	slog.Info("resume uploaded",
		slog.String("user_id", userID),
		slog.String("resume_id", id),
		slog.String("content_type", contentType),
		slog.Int64("size_bytes", size),
	)

	return resume, nil
}

// List はユーザーの履歴書を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Resume, error) {
	resumes, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	return resumes, nil
}

// Get は履歴書のメタデータを返す。他ユーザーの履歴書は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Resume, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewResumeNotFoundError(id)
	}

	resume, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find resume: %w", err)
	}
	if resume == nil {
		return nil, model.NewResumeNotFoundError(id)
	}
	return resume, nil
}

// Open は履歴書のメタデータとファイル本体を返す。呼び出し側が本体をCloseする。
func (s *Service) Open(ctx context.Context, userID, id string) (*model.Resume, io.ReadCloser, error) {
	resume, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.store.Get(ctx, resume.ObjectKey)
	if errors.Is(err, miniostore.ErrObjectNotFound) {
		slog.Warn("resume object missing",
			slog.String("resume_id", id),
			slog.String("object_key", resume.ObjectKey),
		)
		return nil, nil, model.NewResumeNotFoundError(id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open resume object: %w", err)
	}
	return resume, body, nil
}

// Delete はファイル本体を削除してからメタデータを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	resume, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, resume.ObjectKey); err != nil {
		return fmt.Errorf("failed to delete resume object: %w", err)
	}

	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete resume metadata: %w", err)
	}
	if !deleted {
		// 並行した削除で既に消えている
		return model.NewResumeNotFoundError(id)
	}
	return nil
}

// ObjectKey は履歴書ファイルのオブジェクトキーを返す。
func ObjectKey(userID, resumeID string) string {
	return "resumes/" + userID + "/" + resumeID
}

// detectContentType は先頭バイトからファイル形式を判定し、許可された形式なら正規化したMIMEタイプを返す。
func detectContentType(head []byte) (string, bool) {
	detected := mimetype.Detect(head)
	for _, allowed := range allowedContentTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return "", false
}

// sanitizeFileName はファイル名から制御文字とHTMLを除去し、ディレクトリ部分を落とす。
func (s *Service) sanitizeFileName(name string) string {
	name = s.sanitizer.PlainText(name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == "/" {
		return defaultFileName
	}
	return security.Truncate(name, maxFileNameLength)
}
