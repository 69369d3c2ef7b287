package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekdays is a set of ISO weekdays, bit i set for day i (1=Monday..7=Sunday).
type Weekdays uint8

const AllWeekdays Weekdays = 0b1111_1110

var ErrNoWeekdays = errors.New("weekday set is empty")

// ParseWeekdays parses a comma separated list of ISO day numbers ("1,3,5").
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return 0, fmt.Errorf("invalid weekday %q (want 1..7)", part)
		}
		w |= 1 << uint(d)
	}
	if w == 0 {
		return 0, ErrNoWeekdays
	}
	return w, nil
}

// WeekdaysOf builds a set from ISO day numbers; out of range values are ignored.
func WeekdaysOf(days ...int) Weekdays {
	var w Weekdays
	for _, d := range days {
		if d >= 1 && d <= 7 {
			w |= 1 << uint(d)
		}
	}
	return w
}

func (w Weekdays) Empty() bool { return w&AllWeekdays == 0 }

// Has reports whether ISO day d (1..7) is in the set.
func (w Weekdays) Has(d int) bool {
	if d < 1 || d > 7 {
		return false
	}
	return w&(1<<uint(d)) != 0
}

// Contains reports whether the Go weekday is in the set.
func (w Weekdays) Contains(d time.Weekday) bool {
	return w.Has(ISOWeekday(d))
}

// Days returns the ISO day numbers in ascending order.
func (w Weekdays) Days() []int {
	out := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if w.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (w Weekdays) String() string {
	days := w.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ISOWeekday maps time.Sunday=0 to 7 and keeps Monday..Saturday as 1..6.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// CronWeekday maps ISO 1..7 to the cron convention where Sunday is 0.
func CronWeekday(iso int) int {
	return iso % 7
}
