package domain

import (
	"errors"
	"fmt"
	"time"
)

// DeviceRecord is the persisted configuration of a device. Required numeric
// fields are pointers so that a missing key can be told apart from zero.
type DeviceRecord struct {
	Name               string     `json:"name" yaml:"name"`
	Description        string     `json:"description,omitempty" yaml:"description,omitempty"`
	PowerConsumption   *float64   `json:"power_consumption" yaml:"power_consumption"`
	Priority           *int       `json:"priority" yaml:"priority"`
	MinRuntime         int        `json:"min_runtime" yaml:"min_runtime"`
	MaxRuntimePerDay   int        `json:"max_runtime_per_day" yaml:"max_runtime_per_day"`
	SwitchOnThreshold  *float64   `json:"switch_on_threshold" yaml:"switch_on_threshold"`
	SwitchOffThreshold *float64   `json:"switch_off_threshold" yaml:"switch_off_threshold"`
	AllowedTimeRanges  [][]string `json:"allowed_time_ranges" yaml:"allowed_time_ranges"`
}

// Issues lists every problem found in the record, including device invariants.
func (r DeviceRecord) Issues() []string {
	_, issues := r.build()
	return issues
}

// ToDevice builds a validated device in the OFF state.
func (r DeviceRecord) ToDevice() (*Device, error) {
	d, issues := r.build()
	if len(issues) > 0 {
		errs := make([]error, len(issues))
		for i := range issues {
			errs[i] = errors.New(issues[i])
		}
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDevice, r.Name, errors.Join(errs...))
	}
	return d, nil
}

func (r DeviceRecord) build() (*Device, []string) {
	var issues []string
	missing := func(field string) {
		issues = append(issues, fmt.Sprintf("missing required field %s", field))
	}

	d := &Device{
		Name:             r.Name,
		Description:      r.Description,
		MinRuntime:       r.MinRuntime,
		MaxRuntimePerDay: r.MaxRuntimePerDay,
		State:            DeviceStateOff,
	}
	if r.PowerConsumption == nil {
		missing("power_consumption")
	} else {
		d.PowerConsumption = *r.PowerConsumption
	}
	if r.Priority == nil {
		missing("priority")
		d.Priority = PriorityNormal
	} else if p, err := NewPriority(*r.Priority); err != nil {
		issues = append(issues, err.Error())
		d.Priority = PriorityNormal
	} else {
		d.Priority = p
	}
	if r.SwitchOnThreshold == nil {
		missing("switch_on_threshold")
	} else {
		d.SwitchOnThreshold = *r.SwitchOnThreshold
	}
	if r.SwitchOffThreshold == nil {
		missing("switch_off_threshold")
	} else {
		d.SwitchOffThreshold = *r.SwitchOffThreshold
	}
	if r.SwitchOnThreshold == nil || r.SwitchOffThreshold == nil {
		// avoid reporting a bogus ordering issue for a missing threshold
		d.SwitchOffThreshold = min(d.SwitchOffThreshold, d.SwitchOnThreshold)
	}

	for i, pair := range r.AllowedTimeRanges {
		if len(pair) != 2 {
			issues = append(issues, fmt.Sprintf("allowed_time_ranges[%d]: expected [start, end], got %d values", i, len(pair)))
			continue
		}
		tr, err := ParseTimeRange(pair[0], pair[1])
		if err != nil {
			issues = append(issues, fmt.Sprintf("allowed_time_ranges[%d]: %s", i, err))
			continue
		}
		d.AllowedTimeRanges = append(d.AllowedTimeRanges, tr)
	}

	issues = append(issues, d.ValidationIssues()...)
	return d, issues
}

func RecordOf(d *Device) DeviceRecord {
	power := d.PowerConsumption
	priority := int(d.Priority)
	on := d.SwitchOnThreshold
	off := d.SwitchOffThreshold
	ranges := make([][]string, 0, len(d.AllowedTimeRanges))
	for _, tr := range d.AllowedTimeRanges {
		ranges = append(ranges, []string{tr.Start.String(), tr.End.String()})
	}
	return DeviceRecord{
		Name:               d.Name,
		Description:        d.Description,
		PowerConsumption:   &power,
		Priority:           &priority,
		MinRuntime:         d.MinRuntime,
		MaxRuntimePerDay:   d.MaxRuntimePerDay,
		SwitchOnThreshold:  &on,
		SwitchOffThreshold: &off,
		AllowedTimeRanges:  ranges,
	}
}

// DeviceStatus is a read-only view of a device for reporting surfaces.
type DeviceStatus struct {
	DeviceRecord
	PriorityLabel    string      `json:"priority_label"`
	State            DeviceState `json:"state"`
	LastStateChange  *time.Time  `json:"last_state_change,omitempty"`
	LastSwitchOff    *time.Time  `json:"last_switch_off,omitempty"`
	RuntimeToday     int         `json:"runtime_today"`
	CurrentRuntime   int         `json:"current_runtime"`
	RemainingRuntime int         `json:"remaining_runtime"`
	TimeAllowed      bool        `json:"time_allowed"`
	TimeRanges       string      `json:"time_ranges"`
	NextAllowedTime  *time.Time  `json:"next_allowed_time,omitempty"`
}

func StatusOf(d *Device, now time.Time) DeviceStatus {
	st := DeviceStatus{
		DeviceRecord:     RecordOf(d),
		PriorityLabel:    d.Priority.Label(),
		State:            d.State,
		LastStateChange:  d.LastStateChange,
		LastSwitchOff:    d.LastSwitchOff,
		RuntimeToday:     d.RuntimeToday,
		CurrentRuntime:   d.CurrentRuntime(now),
		RemainingRuntime: d.RuntimeUntilMax(now),
		TimeAllowed:      d.IsTimeAllowed(now),
		TimeRanges:       d.FormatTimeRanges(),
	}
	if next, ok := d.NextAllowedTime(now); ok {
		st.NextAllowedTime = &next
	}
	return st
}
