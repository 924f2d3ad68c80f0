// Package kv はユーザー単位のキーバリューストアを提供する。
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/striver-24/ai-resume-analyser/internal/model"
	"github.com/striver-24/ai-resume-analyser/internal/repository"
)

const (
	// MaxKeyLength はキーの最大文字数。
	MaxKeyLength = 256
	// MaxListKeys は一覧で返すキーの最大件数。
	MaxListKeys = 1000
	// MaxValueBytes は値のJSONの最大バイト数。
	MaxValueBytes = 64 * 1024
)

// keyInput はキー検証用の入力。
type keyInput struct {
	Key string `validate:"required,max=256,printable"`
}

// patternInput はglobパターン検証用の入力。空文字は全件を表す。
type patternInput struct {
	Pattern string `validate:"max=256,printable"`
}

// Service はキーバリューストアのビジネスロジックを提供する。
// repoがnilの場合はDB未設定として扱う。
type Service struct {
	repo     repository.KVRepository
	validate *validator.Validate
}

// NewService はServiceを生成する。
func NewService(repo repository.KVRepository) *Service {
	return &Service{
		repo:     repo,
		validate: newValidator(),
	}
}

// newValidator はprintableタグを登録したvalidatorを生成する。
// 登録に失敗した場合は起動時にpanicする。
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("printable", isPrintable); err != nil {
		panic(fmt.Sprintf("kv: failed to register printable validation: %v", err))
	}
	return v
}

// isPrintable は制御文字を含まないことを検証する。
func isPrintable(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), func(r rune) bool {
		return !unicode.IsPrint(r)
	}) < 0
}

// Get は値を取得する。存在しない場合はKEY_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, key string) (*model.KVEntry, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	entry, err := s.repo.Get(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get kv entry: %w", err)
	}
	if entry == nil {
		return nil, model.NewKeyNotFoundError(key)
	}
	return entry, nil
}

// Set は値を保存する。値は妥当なJSONでなければならない。
func (s *Service) Set(ctx context.Context, userID, key string, value json.RawMessage) (*model.KVEntry, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if len(value) == 0 || len(value) > MaxValueBytes || !json.Valid(value) {
		return nil, model.NewInvalidValueError()
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	entry, err := s.repo.Set(ctx, userID, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to set kv entry: %w", err)
	}
	return entry, nil
}

// Delete はキーを削除する。存在しないキーでもエラーにしない。
func (s *Service) Delete(ctx context.Context, userID, key string) error {
	if err := s.validateKey(key); err != nil {
		return err
	}
	if err := s.requireStore(); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID, key); err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// List はglobパターンに一致するキーを昇順で返す。空のパターンは全件に一致する。
func (s *Service) List(ctx context.Context, userID, pattern string) ([]string, error) {
	if err := s.validate.Struct(patternInput{Pattern: pattern}); err != nil {
		return nil, &model.ValidationError{Field: "pattern", Message: err.Error()}
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	keys, err := s.repo.ListKeys(ctx, userID, pattern, MaxListKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv keys: %w", err)
	}
	return keys, nil
}

// validateKey はキーが1〜256文字の印字可能文字であることを検証する。
func (s *Service) validateKey(key string) error {
	if err := s.validate.Struct(keyInput{Key: key}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.NewInvalidKeyError(describeKeyError(verrs[0].Tag()))
		}
		return model.NewInvalidKeyError(err.Error())
	}
	return nil
}

func describeKeyError(tag string) string {
	switch tag {
	case "required":
		return "キーが空です"
	case "max":
		return fmt.Sprintf("%d文字を超えています", MaxKeyLength)
	case "printable":
		return "制御文字を含んでいます"
	default:
		return tag
	}
}

// requireStore はDBが設定されているかを確認する。
func (s *Service) requireStore() error {
	if s.repo == nil {
		return &model.ConfigurationError{Missing: []string{"DATABASE_URL"}}
	}
	return nil
}
