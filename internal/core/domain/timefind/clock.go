package timefind

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tombot/internal/core/domain"
)

// ClockMarkers introduce an absolute time ("at 14:30").
var ClockMarkers = []string{"at", "om"}

var (
	clockRegex = regexp.MustCompile(
		`(?i)(?:\b(?:at|om)\s+)?\b(?P<hour>2[0-3]|[01]?\d)(?:[:.](?P<minute>[0-5]\d)(?:[:.](?P<second>[0-5]\d))?)?` +
			`(?:\s*(?P<ampm>[ap]m))?\b`)
	strictClockRegex = regexp.MustCompile(`^(?:2[0-3]|[01]?\d)[:.][0-5]\d(?:[:.][0-5]\d)?$`)
)

// Clock is a time of day without a date.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// Next returns the first moment after now at which the wall clock reads c.
func (c Clock) Next(now time.Time) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, now.Location())
	if !candidate.After(now) {
		candidate = time.Date(y, m, d+1, c.Hour, c.Minute, c.Second, 0, now.Location())
	}

	return candidate
}

// FindFirstTime returns the first hour[:minute[:second]][am|pm] found in text.
func FindFirstTime(text string) (Clock, error) {
	match := clockRegex.FindStringSubmatch(text)
	if match == nil {
		return Clock{}, fmt.Errorf("%w in %q", domain.ErrNoTimeFound, text)
	}

	var c Clock
	c.Hour, _ = strconv.Atoi(match[clockRegex.SubexpIndex("hour")])
	if m := match[clockRegex.SubexpIndex("minute")]; m != "" {
		c.Minute, _ = strconv.Atoi(m)
	}
	if s := match[clockRegex.SubexpIndex("second")]; s != "" {
		c.Second, _ = strconv.Atoi(s)
	}

	// 12-hour suffix; an hour above 12 already is a 24-hour time.
	switch strings.ToLower(match[clockRegex.SubexpIndex("ampm")]) {
	case "am":
		if c.Hour == 12 {
			c.Hour = 0
		}
	case "pm":
		if c.Hour < 12 {
			c.Hour += 12
		}
	}

	return c, nil
}

// IsStrictClock reports whether word is exactly a clock time like 14:30.
func IsStrictClock(word string) bool {
	return strictClockRegex.MatchString(word)
}

// IsClockMarker reports whether word introduces an absolute time.
func IsClockMarker(word string) bool {
	return contains(ClockMarkers, strings.ToLower(word))
}
