package export

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxIdentityLength = 1000
	MaxFieldLength    = 5000
)

var stripper = strings.NewReplacer(`\`, "", "\x00", "")

// Sanitize removes backslashes and NUL bytes, collapses whitespace
// runs to one space, trims, and truncates to limit runes.
func Sanitize(value string, limit int) string {
	value = stripper.Replace(value)
	value = strings.Join(strings.Fields(value), " ")
	if limit > 0 && utf8.RuneCountInString(value) > limit {
		value = strings.TrimSpace(string([]rune(value)[:limit]))
	}
	return value
}

func fieldLimit(name string) int {
	switch name {
	case "id", "source_id", "target_id":
		return MaxIdentityLength
	}
	return MaxFieldLength
}
