package repository

import "strings"

// GlobToLike はglobパターンをLIKE句のパターンに変換する。
// "*"は"%"、"?"は"_"に変換し、LIKEのメタ文字（%、_、\）はエスケープする。
// 生成したパターンは ESCAPE '\' と組み合わせて使う。空パターンは全件一致として扱う。
func GlobToLike(pattern string) string {
	if pattern == "" {
		return "%"
	}

	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
