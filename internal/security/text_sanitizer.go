// Package security は外部から受け取った文字列の無害化を提供する。
//
// OAuthプロバイダーの表示名やアップロードされたファイル名は、
// 保存前にTextSanitizerでプレーンテキストに正規化する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストへの正規化機能のインターフェースを定義する。
type TextSanitizerService interface {
	// PlainText は制御文字とHTMLタグを除去し、前後の空白を落とした文字列を返す。
	// 文字参照はデコードする。同一入力に対して常に同一出力を返す。
	PlainText(raw string) string
}

// TextSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer は新しいTextSanitizerを生成する。
// タグと属性はすべて除去し、要素の中身のテキストのみを残す。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText は制御文字とHTMLタグを除去したプレーンテキストを返す。
func (s *TextSanitizer) PlainText(raw string) string {
	// 制御文字を先に落とす（NULがU+FFFDに置換されるのを防ぐ）
	text := strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, raw)

	// StrictPolicyは文字参照をエスケープするため、タグ除去後に元に戻す
	text = html.UnescapeString(s.policy.Sanitize(text))

	return strings.TrimSpace(text)
}

// Truncate はsを最大maxRunes文字に切り詰める。
func Truncate(s string, maxRunes int) string {
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

// compile-time interface check
var _ TextSanitizerService = (*TextSanitizer)(nil)
