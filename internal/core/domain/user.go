package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MaxNickLength  = 16
	DefaultTimeout = 2 * time.Hour
)

type User struct {
	ID          int64
	Address     string
	PrimaryNick string
	Timeout     time.Duration
	LastActive  time.Time
	LastMessage string
	Admin       bool
	// Birthday is month and day as MM-DD, empty when unknown.
	Birthday string
}

// Idle reports whether the user has been quiet for at least their timeout.
func (u User) Idle(now time.Time) bool {
	return !now.Before(u.LastActive.Add(u.Timeout))
}

// DisplayName prefers the primary nick over the address.
func (u User) DisplayName() string {
	if u.PrimaryNick != "" {
		return u.PrimaryNick
	}

	return u.Address
}

type Nick struct {
	ID      int64
	Name    string
	Address string
}

// NormalizeNick lowercases nick and checks it can be stored.
func NormalizeNick(nick string) (string, error) {
	nick = strings.ToLower(strings.TrimSpace(nick))

	switch {
	case nick == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidNick)
	case utf8.RuneCountInString(nick) > MaxNickLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidNick, MaxNickLength)
	case isDigits(nick):
		return "", fmt.Errorf("%w: only digits", ErrInvalidNick)
	case strings.ContainsFunc(nick, unicode.IsSpace):
		return "", fmt.Errorf("%w: contains whitespace", ErrInvalidNick)
	}

	return nick, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return s != ""
}

// ParseBirthday accepts MM-DD or YYYY-MM-DD and returns MM-DD.
func ParseBirthday(s string) (string, error) {
	for _, layout := range []string{"01-02", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("01-02"), nil
		}
	}

	return "", fmt.Errorf("invalid birthday %q", s)
}
