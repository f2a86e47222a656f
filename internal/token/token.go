package token

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Source yields the stored access token. The notification pipeline only ever
// reads the credential; the login flow owns writing it.
type Source interface {
	// Token returns the current access token, or "" when none is stored.
	Token() string
}

// FileSource reads the token from a file on every call, so a re-login that
// rewrites the file is picked up without restarting.
type FileSource struct {
	Path string
}

func (s FileSource) Token() string {
	path := s.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, path[2:])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Static is a fixed token, used by tests and one-shot commands.
type Static string

func (s Static) Token() string {
	return string(s)
}

// Expired reports whether the token carries an exp claim in the past. The
// signature is not verified; the client holds no key and the server will
// reject a forged token anyway. Tokens without an exp claim, and strings
// that do not parse as JWTs at all, are treated as not expired and left for
// the server to judge.
func Expired(tokenString string, now time.Time) bool {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(now)
}
