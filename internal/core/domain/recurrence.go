package domain

import (
	"time"
)

// Recurrence yields the first occurrence strictly after t. A cron.Schedule
// satisfies it.
type Recurrence interface {
	Next(t time.Time) time.Time
}

// Relocator moves a naive occurrence date to the business day it is actually
// observed on. Relocators must be idempotent.
type Relocator func(day time.Time) time.Time

// Rule is a named recurring announcement.
type Rule struct {
	Name       string
	Recurrence Recurrence
	Relocator  Relocator
}

// Occurrence is a rule's next date after relocation.
type Occurrence struct {
	Rule Rule
	Date time.Time
}

// EveryNWeeks recurs every N weeks counted from Anchor.
type EveryNWeeks struct {
	Anchor time.Time
	N      int
}

func (e EveryNWeeks) Next(t time.Time) time.Time {
	period := time.Duration(e.N) * 7 * 24 * time.Hour
	if period <= 0 {
		return time.Time{}
	}

	if t.Before(e.Anchor) {
		return e.Anchor
	}

	weeks := int(t.Sub(e.Anchor)/period) * e.N
	next := e.Anchor.AddDate(0, 0, 7*weeks)
	for !next.After(t) {
		next = next.AddDate(0, 0, 7*e.N)
	}

	return next
}

func Identity(day time.Time) time.Time {
	return Day(day)
}

// FirstWeekdayOnOrAfter moves a Saturday or Sunday to the following Monday.
func FirstWeekdayOnOrAfter(day time.Time) time.Time {
	day = Day(day)
	switch day.Weekday() {
	case time.Saturday:
		return day.AddDate(0, 0, 2)
	case time.Sunday:
		return day.AddDate(0, 0, 1)
	default:
		return day
	}
}

// LastWeekdayOnOrBefore moves a Saturday or Sunday to the preceding Friday.
func LastWeekdayOnOrBefore(day time.Time) time.Time {
	day = Day(day)
	switch day.Weekday() {
	case time.Saturday:
		return day.AddDate(0, 0, -1)
	case time.Sunday:
		return day.AddDate(0, 0, -2)
	default:
		return day
	}
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextOccurrence returns the first relocated date of the rule that is on or
// after the day of now.
func (r Rule) NextOccurrence(now time.Time) time.Time {
	today := Day(now)
	relocate := r.Relocator
	if relocate == nil {
		relocate = Identity
	}

	// Relocators move a date by at most two days, so a naive date up to
	// three days back can still land on today.
	cursor := today.AddDate(0, 0, -3).Add(-time.Second)
	for range 64 {
		naive := r.Recurrence.Next(cursor)
		if naive.IsZero() {
			return time.Time{}
		}

		actual := relocate(naive)
		if !actual.Before(today) {
			return actual
		}
		cursor = naive
	}

	return time.Time{}
}

// NextOccurrences evaluates every rule relative to now.
func NextOccurrences(rules []Rule, now time.Time) []Occurrence {
	result := make([]Occurrence, 0, len(rules))
	for _, rule := range rules {
		result = append(result, Occurrence{Rule: rule, Date: rule.NextOccurrence(now)})
	}

	return result
}

// WhichToday lists the names of the rules that fall on the day of now.
func WhichToday(rules []Rule, now time.Time) []string {
	today := Day(now)

	var names []string
	for _, o := range NextOccurrences(rules, now) {
		if o.Date.Equal(today) {
			names = append(names, o.Rule.Name)
		}
	}

	return names
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a, b = Day(a), Day(b)
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)

	return int(ub.Sub(ua).Hours() / 24)
}
