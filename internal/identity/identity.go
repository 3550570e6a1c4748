package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrMissingSubject    = errors.New("identity has no subject")
)

const (
	MaxDisplayNameRunes = 48
	DefaultDisplayName  = "Player"
	devSubjectPrefix    = "dev:"
)

// Identity is a verified subject plus its public profile.
type Identity struct {
	Subject     string `json:"subject"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Verifier turns an external credential into a trusted Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// SanitizeDisplayName trims, collapses whitespace and caps the name length.
func SanitizeDisplayName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(name) > MaxDisplayNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:MaxDisplayNameRunes]))
	}
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

// DevIdentity builds the identity used by dev sign-in. The subject is derived
// from the normalised name so signing in twice with the same name yields the
// same user.
func DevIdentity(displayName string) Identity {
	name := SanitizeDisplayName(displayName)
	return Identity{
		Subject:     devSubjectPrefix + normalizeKey(name),
		Username:    normalizeKey(name),
		DisplayName: name,
	}
}

func normalizeKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_', r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return strings.ToLower(DefaultDisplayName)
	}
	return b.String()
}

// TokenFromRequest extracts a token from the Authorization header, the
// token query parameter or the token cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	if c, err := r.Cookie("token"); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
