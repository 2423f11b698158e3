package timetext

import (
	"testing"
	"time"
)

// Fixed reference: Wednesday 1 January 2025, 12:00 UTC.
var reference = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestParseISO(t *testing.T) {
	got := Parse("2025-02-02T06:00:00Z", reference, true)
	if got == nil {
		t.Fatal("expected ISO timestamp to parse")
	}
	want := time.Date(2025, 2, 2, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse ISO = %v, want %v", got, want)
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	got := Parse("Tuesday 14th January at 2pm", reference, true)
	if got == nil {
		t.Fatal("expected natural-language expression to parse")
	}
	if got.Month() != time.January || got.Day() != 14 || got.Hour() != 14 {
		t.Errorf("Parse natural = %v, want Jan 14 14:00", got)
	}
	if got.Before(reference) {
		t.Errorf("forward parse resolved to the past: %v", got)
	}
}

func TestParseForwardResolution(t *testing.T) {
	// No year given and the date already passed this year: nearest future.
	got := Parse("15th January at 2pm", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true)
	if got == nil {
		t.Fatal("expected expression to parse")
	}
	if got.Before(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("forward parse resolved to the past: %v", got)
	}
	if got.Month() != time.January || got.Day() != 15 {
		t.Errorf("Parse = %v, want a January 15th", got)
	}
}

func TestParseUnparseable(t *testing.T) {
	for _, input := range []string{"", "   ", "no time here at all ###"} {
		if got := Parse(input, reference, true); got != nil {
			t.Errorf("Parse(%q) = %v, want nil", input, got)
		}
	}
}

func TestEqual(t *testing.T) {
	a := "Monday 3rd February at 10:00am"
	b := "Monday 3 February at 10:00am"
	x := "x"

	tests := []struct {
		name string
		a, b *string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"left nil", nil, &a, false},
		{"right nil", &a, nil, false},
		{"semantically equal", &a, &b, true},
		{"unparseable falls back to string equality", &x, &x, true},
		{"unparseable mismatch", &x, &a, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b, reference); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestIsInPast(t *testing.T) {
	now := reference
	if !IsInPast(now.Add(-time.Minute), now) {
		t.Error("one minute ago should be in the past")
	}
	if IsInPast(now.Add(time.Minute), now) {
		t.Error("one minute ahead should not be in the past")
	}
}

func TestIsWithinHours(t *testing.T) {
	now := reference

	tests := []struct {
		name    string
		instant time.Time
		n       int
		want    bool
	}{
		{"two hours ahead within four", now.Add(2 * time.Hour), 4, true},
		{"five hours ahead not within four", now.Add(5 * time.Hour), 4, false},
		{"exactly n hours ahead", now.Add(4 * time.Hour), 4, true},
		{"past instant never within", now.Add(-time.Hour), 4, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWithinHours(tc.instant, now, tc.n); got != tc.want {
				t.Errorf("IsWithinHours(%v, %d) = %v, want %v", tc.instant, tc.n, got, tc.want)
			}
		})
	}
}
