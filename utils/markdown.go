package utils

import "strings"

// markdownReserved lists the characters escaped for Telegram MarkdownV2.
const markdownReserved = "_*[]()~`>#+-=|{}.!:"

// EscapeMarkdown prefixes every MarkdownV2 reserved character with a
// backslash. Backslashes themselves are left alone, so escaping twice is
// not the same as escaping once.
func EscapeMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
