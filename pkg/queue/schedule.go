package queue

import (
	"fmt"
	"time"
)

// Schedule yields the run times of a periodic task.
type Schedule interface {
	// Next returns the first run strictly after from.
	Next(from time.Time) time.Time
	String() string
}

type every time.Duration

func (e every) Next(from time.Time) time.Time { return from.Add(time.Duration(e)) }

func (e every) String() string { return "every " + time.Duration(e).String() }

// Every runs a task at a fixed interval. It panics on a non-positive d.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("queue: invalid schedule interval %s", d))
	}
	return every(d)
}

type dailyAt struct {
	hour, minute int
	loc          *time.Location
}

func (s dailyAt) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}

// DailyAt runs a task once a day at hour:minute in loc, UTC when loc is nil.
// It panics when the time of day is out of range.
func DailyAt(hour, minute int, loc *time.Location) Schedule {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("queue: invalid time of day %02d:%02d", hour, minute))
	}
	if loc == nil {
		loc = time.UTC
	}
	return dailyAt{hour: hour, minute: minute, loc: loc}
}
