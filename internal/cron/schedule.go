package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when a cron expression cannot be
// parsed as a standard 5-field schedule.
type ErrInvalidExpression struct {
	Expr  string
	Cause error
}

func (e *ErrInvalidExpression) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Cause)
}

func (e *ErrInvalidExpression) Unwrap() error { return e.Cause }

// standard 5-field parser: minute, hour, day-of-month, month, day-of-week.
// Wildcards, ranges, steps and lists are supported. When both day-of-month
// and day-of-week are restricted, the schedule fires when EITHER matches
// (conventional cron OR-combination, which robfig implements).
var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

// Parse validates and compiles a 5-field cron expression.
func Parse(expr string) (cronlib.Schedule, error) {
	if expr == "" {
		return nil, &ErrInvalidExpression{Expr: expr, Cause: fmt.Errorf("empty expression")}
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, &ErrInvalidExpression{Expr: expr, Cause: err}
	}
	return sched, nil
}

// Next computes the first occurrence of expr strictly after t. The
// result is deterministic for a given (expr, t) pair.
func Next(expr string, t time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}
