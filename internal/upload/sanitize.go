package upload

import (
	"regexp"
	"strings"
	"unicode"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// SanitizeMessage 去除 HTML 标签与控制字符（保留换行），并截断到 maxRunes。
func SanitizeMessage(raw string, maxRunes int) string {
	s := htmlTag.ReplaceAllString(strings.TrimSpace(raw), "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if maxRunes > 0 {
		if runes := []rune(s); len(runes) > maxRunes {
			s = string(runes[:maxRunes])
		}
	}
	return s
}
