// Package timefind extracts relative durations and clock times from free
// text. Unit words are accepted in English and Dutch.
package timefind

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tombot/internal/core/domain"
)

var (
	yearWords   = []string{"y", "j", "jaar", "jaren", "years", "year"}
	weekWords   = []string{"w", "weeks", "week", "weken"}
	dayWords    = []string{"d", "dag", "dagen", "day", "days"}
	hourWords   = []string{"h", "hr", "hrs", "hours", "hour", "u", "uur", "uren"}
	minuteWords = []string{"m", "min", "mins", "minute", "minutes", "minuten", "minuut"}
	secondWords = []string{"s", "sec", "secs", "second", "seconds", "seconden"}

	separators = []string{`\s`, `,`, `en`, `and`, `&`}
)

// DurationMarkers introduce a relative reminder ("in 10 minutes").
var DurationMarkers = []string{"in", "over", "na"}

var unitGroups = []string{"years", "weeks", "days", "hours", "minutes", "seconds"}

var durationRegex = buildDurationRegex()

func buildDurationRegex() *regexp.Regexp {
	lists := [][]string{yearWords, weekWords, dayWords, hourWords, minuteWords, secondWords}

	parts := make([]string, len(lists))
	for i, words := range lists {
		parts[i] = fmt.Sprintf(`((?P<%s>\d+)\s*?(%s))?`, unitGroups[i], alternation(words))
	}

	sep := fmt.Sprintf(`(?:%s)*`, strings.Join(separators, "|"))

	return regexp.MustCompile(`(?i)` + strings.Join(parts, sep))
}

// alternation joins words longest first so a short synonym never consumes
// the prefix of a longer one.
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	for i, w := range sorted {
		sorted[i] = regexp.QuoteMeta(w)
	}

	return strings.Join(sorted, "|")
}

// Duration is a parsed relative time span. Years count as 365 days and weeks
// as 7 days, with no calendar awareness.
type Duration struct {
	Years   int
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// TotalDays folds years and weeks into days.
func (d Duration) TotalDays() int {
	return d.Days + 7*d.Weeks + 365*d.Years
}

func (d Duration) totalSeconds() float64 {
	return float64(d.Seconds) +
		60*float64(d.Minutes) +
		3600*float64(d.Hours) +
		86400*float64(d.TotalDays())
}

func (d Duration) Total() time.Duration {
	return time.Duration(d.totalSeconds()) * time.Second
}

func (d Duration) IsZero() bool {
	return d == Duration{}
}

// FindTimedelta returns the first duration expression in text that has at
// least one number in it. It fails with domain.ErrNoTimeFound when there is
// none.
func FindTimedelta(text string) (Duration, error) {
	for _, match := range durationRegex.FindAllStringSubmatchIndex(text, -1) {
		var d Duration
		found := false

		fields := []*int{&d.Years, &d.Weeks, &d.Days, &d.Hours, &d.Minutes, &d.Seconds}
		for i, name := range unitGroups {
			idx := durationRegex.SubexpIndex(name)
			start, end := match[2*idx], match[2*idx+1]
			if start < 0 {
				continue
			}

			n, err := strconv.Atoi(text[start:end])
			if err != nil {
				return Duration{}, fmt.Errorf("%w: %s", domain.ErrDurationTooLarge, text[start:end])
			}
			*fields[i] = n
			found = true
		}

		if !found {
			continue
		}

		if d.totalSeconds() > math.MaxInt64/float64(time.Second) {
			return Duration{}, domain.ErrDurationTooLarge
		}

		return d, nil
	}

	return Duration{}, fmt.Errorf("%w in %q", domain.ErrNoTimeFound, text)
}

// IsDurationMarker reports whether word introduces a relative time.
func IsDurationMarker(word string) bool {
	return contains(DurationMarkers, strings.ToLower(word))
}

func contains(list []string, word string) bool {
	for _, w := range list {
		if w == word {
			return true
		}
	}

	return false
}
