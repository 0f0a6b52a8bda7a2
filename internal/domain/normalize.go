package domain

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var fold = cases.Fold()

// collapse joins whitespace-separated fields with single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeName(v string) (string, bool) {
	v = collapse(fold.String(norm.NFKC.String(v)))
	if !strings.ContainsFunc(v, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return "", false
	}
	return v, true
}

func normalizeIdentifier(v string) (string, bool) {
	var b strings.Builder
	for _, r := range norm.NFKC.String(v) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func normalizeEmail(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "mailto:")
	local, host, ok := strings.Cut(v, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") || strings.ContainsFunc(v, unicode.IsSpace) {
		return "", false
	}
	return v, true
}

func normalizePhone(v string) (string, bool) {
	var b strings.Builder
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "+") {
		b.WriteByte('+')
	} else if strings.HasPrefix(v, "00") {
		b.WriteByte('+')
		v = v[2:]
	}
	digits := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 5 {
		return "", false
	}
	return b.String(), true
}

func normalizeIBAN(v string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(v) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
		default:
			return "", false
		}
	}
	s := b.String()
	if len(s) < 15 || len(s) > 34 {
		return "", false
	}
	for i := 0; i < 4; i++ {
		letter := s[i] >= 'A' && s[i] <= 'Z'
		if (i < 2) != letter {
			return "", false
		}
	}
	return s, true
}

func normalizeURL(v string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
	default:
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), true
}
