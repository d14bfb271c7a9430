package service

import (
	"fmt"
	"time"

	"github.com/reugn/go-quartz/quartz"
)

const DefaultDailyResetCron = "0 0 0 * * *"

// ResetSchedule computes the fire times of the daily statistics reset from a
// quartz cron expression evaluated in loc.
type ResetSchedule struct {
	trigger *quartz.CronTrigger
}

func NewResetSchedule(expression string, loc *time.Location) (*ResetSchedule, error) {
	if expression == "" {
		expression = DefaultDailyResetCron
	}
	if loc == nil {
		loc = time.Local
	}
	trigger, err := quartz.NewCronTriggerWithLoc(expression, loc)
	if err != nil {
		return nil, fmt.Errorf("daily reset cron %q: %w", expression, err)
	}
	return &ResetSchedule{trigger: trigger}, nil
}

// Next returns the first fire time strictly after now.
func (r *ResetSchedule) Next(now time.Time) (time.Time, error) {
	next, err := r.trigger.NextFireTime(now.UnixNano())
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, next).In(now.Location()), nil
}

func (r *ResetSchedule) String() string {
	return r.trigger.Description()
}
