package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall clock time expressed in seconds since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay accepts HH:MM:SS and HH:MM.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM:SS or HH:MM", value)
	}
	limits := []int{23, 59, 59}
	fields := make([]int, 3)
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("invalid time of day %q, expected HH:MM:SS or HH:MM", value)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q, expected HH:MM:SS or HH:MM", value)
		}
		fields[i] = n
	}
	return NewTimeOfDay(fields[0], fields[1], fields[2]), nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) Short() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant of t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}

// TimeRange is an inclusive [Start, End] window within a single day.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return TimeRange{}, err
	}
	r := TimeRange{Start: s, End: e}
	return r, r.Validate()
}

// FullDay reports the 00:00-00:00 form, which allows the whole day.
func (r TimeRange) FullDay() bool {
	return r.Start == 0 && r.End == 0
}

func (r TimeRange) Validate() error {
	if r.Start < 0 || r.Start >= secondsPerDay || r.End < 0 || r.End >= secondsPerDay {
		return fmt.Errorf("time range %s out of bounds", r)
	}
	if r.FullDay() {
		return nil
	}
	if r.Start == r.End {
		return fmt.Errorf("time range %s is empty", r)
	}
	if r.Start > r.End {
		return fmt.Errorf("time range %s wraps midnight, split it into two ranges", r)
	}
	return nil
}

func (r TimeRange) Contains(t TimeOfDay) bool {
	if r.FullDay() {
		return true
	}
	return r.Start <= t && t <= r.End
}

func (r TimeRange) Overlaps(other TimeRange) bool {
	if r.FullDay() || other.FullDay() {
		return true
	}
	return r.Start <= other.End && other.Start <= r.End
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

func (r TimeRange) Short() string {
	return fmt.Sprintf("%s-%s", r.Start.Short(), r.End.Short())
}

// OverlappingRanges returns index pairs of ranges that overlap each other.
func OverlappingRanges(ranges []TimeRange) [][2]int {
	var overlaps [][2]int
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				overlaps = append(overlaps, [2]int{i, j})
			}
		}
	}
	return overlaps
}
