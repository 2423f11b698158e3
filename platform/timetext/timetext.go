// Package timetext normalizes free-text time expressions into instants.
// It accepts both machine formats (ISO-8601 and friends) and natural
// language ("Tuesday 15th January at 2pm"). Unparseable input yields nil,
// never an error: callers treat a nil instant as "no usable time".
package timetext

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// parser is the shared natural-language parser. when.Parser is read-only
// after construction, so a package-level instance is safe for concurrent use.
var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// monthOrDigitRe detects expressions anchored to a calendar date rather than
// a bare weekday. Used to decide how far to shift an ambiguous match.
var monthOrDigitRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b|\d{1,2}(st|nd|rd|th)?\b`)

// weekdayRe detects a weekday mention.
var weekdayRe = regexp.MustCompile(`(?i)\b(mon|tues?|wed(nes)?|thur?s?|fri|sat(ur)?|sun)(day)?\b`)

// Parse resolves free text into an instant relative to reference.
// When forward is true, year-less and weekday-only expressions resolve to
// the nearest future occurrence; otherwise to the nearest past or present
// occurrence. Returns nil for input no parser understands.
func Parse(text string, reference time.Time, forward bool) *time.Time {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// Machine formats first: explicit dates never need occurrence resolution.
	if t, err := dateparse.ParseIn(trimmed, reference.Location()); err == nil {
		return &t
	}

	result, err := parser.Parse(trimmed, reference)
	if err != nil || result == nil {
		return nil
	}

	resolved := resolveOccurrence(trimmed, result.Time, reference, forward)
	return &resolved
}

// resolveOccurrence shifts an ambiguous match to the requested side of the
// reference instant. Weekday-only expressions shift by whole weeks,
// calendar-date expressions by whole years.
func resolveOccurrence(text string, t, reference time.Time, forward bool) time.Time {
	weekdayOnly := weekdayRe.MatchString(text) && !monthOrDigitRe.MatchString(text)

	if forward {
		for t.Before(reference) {
			t = shift(t, weekdayOnly, 1)
		}
		return t
	}

	for t.After(reference) {
		t = shift(t, weekdayOnly, -1)
	}
	return t
}

func shift(t time.Time, weekdayOnly bool, direction int) time.Time {
	if weekdayOnly {
		return t.AddDate(0, 0, 7*direction)
	}
	return t.AddDate(direction, 0, 0)
}

// Equal compares two free-text time expressions for semantic equality.
// Both nil: true. Exactly one nil: false. Otherwise both sides are parsed
// against the same reference; if either fails to parse, the comparison
// falls back to exact string equality rather than reporting a mismatch.
func Equal(a, b *string, reference time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	ta := Parse(*a, reference, true)
	tb := Parse(*b, reference, true)
	if ta == nil || tb == nil {
		return *a == *b
	}

	return ta.Equal(*tb)
}

// IsInPast reports whether instant is strictly before now.
func IsInPast(instant, now time.Time) bool {
	return instant.Before(now)
}

// IsWithinHours reports whether instant falls within the next n hours.
// Past instants are never "within", even when closer than n hours backward.
func IsWithinHours(instant, now time.Time, n int) bool {
	if instant.Before(now) {
		return false
	}
	return !instant.After(now.Add(time.Duration(n) * time.Hour))
}
