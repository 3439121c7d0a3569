// Package schedule provides recurring-task scheduling owned by the process
// lifecycle: a Runner started on boot and stopped on graceful shutdown, with
// an injectable clock for testing.
package schedule

import (
	"fmt"
	"time"
)

// Schedule determines when a recurring task should next run.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

// Every returns a schedule firing at fixed intervals.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic("schedule: interval must be positive")
	}
	return intervalSchedule{every: d}
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

// Daily returns a schedule firing once per day at the given wall-clock time
// in loc. A nil location defaults to UTC.
func Daily(hour, minute int, loc *time.Location) Schedule {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("schedule: invalid daily time %02d:%02d", hour, minute))
	}
	if loc == nil {
		loc = time.UTC
	}
	return dailySchedule{hour: hour, minute: minute, loc: loc}
}

type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		// AddDate keeps the wall-clock time stable across DST transitions.
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}
