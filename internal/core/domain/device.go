package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// UnlimitedRuntime is reported as remaining runtime for devices without a daily cap.
	UnlimitedRuntime  = 999999
	MaxRuntimeMinutes = 24 * 60
)

// Device is a controllable load. The first block of fields is configuration,
// the rest is runtime state owned by the scheduler.
type Device struct {
	Name               string
	Description        string
	PowerConsumption   float64
	Priority           Priority
	SwitchOnThreshold  float64
	SwitchOffThreshold float64
	MinRuntime         int
	MaxRuntimePerDay   int
	AllowedTimeRanges  []TimeRange

	State           DeviceState
	LastStateChange *time.Time
	LastSwitchOff   *time.Time
	RuntimeToday    int
	// SessionStart is where the running session starts counting towards
	// RuntimeToday. It follows the daily reset, LastStateChange does not.
	SessionStart *time.Time
}

func NewDevice(name string, power float64, priority Priority, onThreshold, offThreshold float64) (*Device, error) {
	d := &Device{
		Name:               name,
		PowerConsumption:   power,
		Priority:           priority,
		SwitchOnThreshold:  onThreshold,
		SwitchOffThreshold: offThreshold,
		State:              DeviceStateOff,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) ValidationIssues() []string {
	var issues []string
	if strings.TrimSpace(d.Name) == "" {
		issues = append(issues, "name must not be empty")
	}
	if d.PowerConsumption < 0 {
		issues = append(issues, fmt.Sprintf("power_consumption must be >= 0, got %g", d.PowerConsumption))
	}
	if !d.Priority.Valid() {
		issues = append(issues, fmt.Sprintf("priority must be in [%d,%d], got %d", PriorityCritical, PriorityOptional, d.Priority))
	}
	if d.SwitchOnThreshold < 0 {
		issues = append(issues, fmt.Sprintf("switch_on_threshold must be >= 0, got %g", d.SwitchOnThreshold))
	}
	if d.SwitchOffThreshold < 0 {
		issues = append(issues, fmt.Sprintf("switch_off_threshold must be >= 0, got %g", d.SwitchOffThreshold))
	}
	if d.SwitchOffThreshold > d.SwitchOnThreshold {
		issues = append(issues, fmt.Sprintf("switch_off_threshold (%g) must not exceed switch_on_threshold (%g)",
			d.SwitchOffThreshold, d.SwitchOnThreshold))
	}
	if d.MinRuntime < 0 || d.MinRuntime > MaxRuntimeMinutes {
		issues = append(issues, fmt.Sprintf("min_runtime must be in [0,%d], got %d", MaxRuntimeMinutes, d.MinRuntime))
	}
	if d.MaxRuntimePerDay < 0 || d.MaxRuntimePerDay > MaxRuntimeMinutes {
		issues = append(issues, fmt.Sprintf("max_runtime_per_day must be in [0,%d], got %d", MaxRuntimeMinutes, d.MaxRuntimePerDay))
	}
	for i, r := range d.AllowedTimeRanges {
		if err := r.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("allowed_time_ranges[%d]: %s", i, err))
		}
	}
	return issues
}

func (d *Device) Validate() error {
	issues := d.ValidationIssues()
	if len(issues) == 0 {
		return nil
	}
	errs := make([]error, len(issues))
	for i := range issues {
		errs[i] = errors.New(issues[i])
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidDevice, d.Name, errors.Join(errs...))
}

// RangeOverlaps lists overlapping allowed time ranges. Overlaps are accepted.
func (d *Device) RangeOverlaps() [][2]int {
	return OverlappingRanges(d.AllowedTimeRanges)
}

func (d *Device) IsTimeAllowed(now time.Time) bool {
	if len(d.AllowedTimeRanges) == 0 {
		return true
	}
	t := TimeOfDayOf(now)
	for _, r := range d.AllowedTimeRanges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// NextAllowedTime returns the next instant at which a blocked device enters one of its
// windows. It returns false when the device is unrestricted or already allowed.
func (d *Device) NextAllowedTime(now time.Time) (time.Time, bool) {
	if len(d.AllowedTimeRanges) == 0 || d.IsTimeAllowed(now) {
		return time.Time{}, false
	}
	current := TimeOfDayOf(now)
	var next *TimeOfDay
	var earliest *TimeOfDay
	for i := range d.AllowedTimeRanges {
		start := d.AllowedTimeRanges[i].Start
		if earliest == nil || start < *earliest {
			earliest = &start
		}
		if start > current && (next == nil || start < *next) {
			next = &start
		}
	}
	if next != nil {
		return next.On(now), true
	}
	return earliest.On(now.AddDate(0, 0, 1)), true
}

func (d *Device) CanRunToday() bool {
	return d.MaxRuntimePerDay == 0 || d.RuntimeToday < d.MaxRuntimePerDay
}

func (d *Device) RemainingRuntimeToday() int {
	if d.MaxRuntimePerDay == 0 {
		return UnlimitedRuntime
	}
	return max(0, d.MaxRuntimePerDay-d.RuntimeToday)
}

// SessionMinutes is the part of the running ON session counted today, in whole minutes.
func (d *Device) SessionMinutes(now time.Time) int {
	if d.State != DeviceStateOn {
		return 0
	}
	start := d.SessionStart
	if start == nil {
		start = d.LastStateChange
	}
	if start == nil {
		return 0
	}
	elapsed := now.Sub(*start)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

// CurrentRuntime is today's runtime including the running session.
func (d *Device) CurrentRuntime(now time.Time) int {
	return d.RuntimeToday + d.SessionMinutes(now)
}

// RuntimeUntilMax is the time left before the daily cap, counting the running session.
func (d *Device) RuntimeUntilMax(now time.Time) int {
	if d.MaxRuntimePerDay == 0 {
		return UnlimitedRuntime
	}
	return max(0, d.MaxRuntimePerDay-d.CurrentRuntime(now))
}

func (d *Device) MinRuntimeElapsed(now time.Time) bool {
	if d.MinRuntime == 0 || d.LastStateChange == nil {
		return true
	}
	return now.Sub(*d.LastStateChange) >= time.Duration(d.MinRuntime)*time.Minute
}

func (d *Device) HysteresisElapsed(now time.Time, hysteresis time.Duration) bool {
	if d.LastSwitchOff == nil {
		return true
	}
	return now.Sub(*d.LastSwitchOff) >= hysteresis
}

// MarkOn records an ON transition at now.
func (d *Device) MarkOn(now time.Time) {
	d.State = DeviceStateOn
	d.LastStateChange = &now
	start := now
	d.SessionStart = &start
}

// MarkOff records an OFF transition at now and adds the finished session to RuntimeToday.
func (d *Device) MarkOff(now time.Time) {
	d.RuntimeToday += d.SessionMinutes(now)
	d.State = DeviceStateOff
	d.LastStateChange = &now
	d.LastSwitchOff = &now
	d.SessionStart = nil
}

// ResetDaily starts a new runtime day at now. A running session keeps going
// but only its minutes after now count towards the new day.
func (d *Device) ResetDaily(now time.Time) {
	d.RuntimeToday = 0
	if d.State == DeviceStateOn {
		d.SessionStart = &now
	}
	if d.State == DeviceStateBlocked {
		d.State = DeviceStateOff
	}
}

func (d *Device) FormatTimeRanges() string {
	if len(d.AllowedTimeRanges) == 0 {
		return "always"
	}
	parts := make([]string, len(d.AllowedTimeRanges))
	for i, r := range d.AllowedTimeRanges {
		parts[i] = r.Short()
	}
	return strings.Join(parts, ", ")
}

func (d *Device) Clone() *Device {
	c := *d
	if d.AllowedTimeRanges != nil {
		c.AllowedTimeRanges = append([]TimeRange(nil), d.AllowedTimeRanges...)
	}
	if d.LastStateChange != nil {
		t := *d.LastStateChange
		c.LastStateChange = &t
	}
	if d.LastSwitchOff != nil {
		t := *d.LastSwitchOff
		c.LastSwitchOff = &t
	}
	if d.SessionStart != nil {
		t := *d.SessionStart
		c.SessionStart = &t
	}
	return &c
}

func (d *Device) String() string {
	return fmt.Sprintf("Device(name=%q, power=%gW, priority=%d (%s), state=%s, runtime_today=%dmin)",
		d.Name, d.PowerConsumption, d.Priority, d.Priority.Label(), d.State, d.RuntimeToday)
}
