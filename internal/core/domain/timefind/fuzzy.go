package timefind

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"tombot/internal/core/domain"
)

const maxWindow = 6

// FindFuzzy looks for the longest run of words in text that reads as a date,
// trying earlier positions first. A lone clock time like 14:30 is read as
// that time on the day of now.
func FindFuzzy(text string, now time.Time) (time.Time, error) {
	words := strings.Fields(text)
	for i := range words {
		words[i] = strings.TrimRight(words[i], ".,;!?")
	}

	for start := range words {
		for size := min(maxWindow, len(words)-start); size > 0; size-- {
			candidate := strings.Join(words[start:start+size], " ")
			if !plausibleDate(candidate) || (size == 1 && IsStrictClock(candidate)) {
				continue
			}

			t, err := dateparse.ParseIn(candidate, now.Location())
			if err == nil {
				return t, nil
			}
		}
	}

	for _, w := range words {
		if !IsStrictClock(w) {
			continue
		}

		c, err := FindFirstTime(w)
		if err != nil {
			continue
		}

		y, m, d := now.Date()
		return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, now.Location()), nil
	}

	return time.Time{}, fmt.Errorf("%w in %q", domain.ErrNoTimeFound, text)
}

// plausibleDate rejects bare numbers, which dateparse would read as years or
// unix timestamps.
func plausibleDate(s string) bool {
	hasDigit, hasOther := false, false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasOther = true
		}
	}

	return hasDigit && hasOther
}
