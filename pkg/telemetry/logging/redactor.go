package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log attributes.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		// Slack incoming webhooks carry their secret in the path.
		{regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/_-]+`), "https://hooks.slack.com/services/***"},
		{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
		{regexp.MustCompile(`(password|passwd|pwd|secret)[:=]\s*[^\s]+`), "$1: ***"},
	}}
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); s != "" {
			a.Value = slog.StringValue(r.RedactString(s))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range []string{"password", "passwd", "secret", "token", "authorization"} {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}
