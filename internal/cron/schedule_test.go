package cron

import (
	"errors"
	"testing"
	"time"
)

func TestParseRejectsInvalidExpressions(t *testing.T) {
	bad := []string{
		"",
		"not a cron",
		"61 * * * *",
		"* * * *",     // 4 fields
		"* * * * * *", // 6 fields
	}
	for _, expr := range bad {
		_, err := Parse(expr)
		if err == nil {
			t.Errorf("Parse(%q) accepted invalid expression", expr)
			continue
		}
		var invalid *ErrInvalidExpression
		if !errors.As(err, &invalid) {
			t.Errorf("Parse(%q) error type = %T, want *ErrInvalidExpression", expr, err)
		}
	}
}

func TestParseAcceptsStandardForms(t *testing.T) {
	good := []string{
		"* * * * *",
		"30 7 * * *",
		"0 */2 * * *",
		"15 8-18 * * 1-5",
		"0 0 1,15 * *",
	}
	for _, expr := range good {
		if _, err := Parse(expr); err != nil {
			t.Errorf("Parse(%q) failed: %v", expr, err)
		}
	}
}

func TestNextIsStrictlyFutureAndDeterministic(t *testing.T) {
	ref := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)

	for _, expr := range []string{"30 7 * * *", "* * * * *", "0 0 1 * *"} {
		first, err := Next(expr, ref)
		if err != nil {
			t.Fatalf("Next(%q) failed: %v", expr, err)
		}
		if !first.After(ref) {
			t.Errorf("Next(%q) = %v, not strictly after %v", expr, first, ref)
		}
		second, _ := Next(expr, ref)
		if !first.Equal(second) {
			t.Errorf("Next(%q) not deterministic: %v vs %v", expr, first, second)
		}
	}
}

func TestNextDailyAt0730(t *testing.T) {
	ref := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	next, err := Next("30 7 * * *", ref)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 3, 11, 7, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

// Restricted day-of-month and day-of-week combine with OR: the schedule
// fires when either field matches.
func TestNextDomDowOrCombination(t *testing.T) {
	// "0 9 13 * 5": the 13th of the month OR any Friday, at 09:00.
	// 2025-06-12 is a Thursday; the 13th is both a Friday and the 13th.
	ref := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	next, err := Next("0 9 13 * 5", ref)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 13, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("first = %v, want %v", next, want)
	}

	// After Friday the 13th, the next hit is Friday the 20th, not
	// July the 13th: day-of-week alone is enough.
	next2, err := Next("0 9 13 * 5", next)
	if err != nil {
		t.Fatal(err)
	}
	want2 := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)
	if !next2.Equal(want2) {
		t.Errorf("second = %v, want %v", next2, want2)
	}
}
