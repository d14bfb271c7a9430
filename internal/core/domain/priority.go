package domain

import "fmt"

// Priority ranks devices. Lower values are more important: 1 is critical, 10 optional.
type Priority uint8

const (
	PriorityCritical    Priority = 1
	PriorityVeryHigh    Priority = 2
	PriorityHigh        Priority = 3
	PriorityAboveNormal Priority = 4
	PriorityNormal      Priority = 5
	PriorityBelowNormal Priority = 6
	PriorityLow         Priority = 7
	PriorityVeryLow     Priority = 8
	PriorityMinimal     Priority = 9
	PriorityOptional    Priority = 10
)

var priorityLabels = map[Priority]string{
	PriorityCritical:    "critical",
	PriorityVeryHigh:    "very high",
	PriorityHigh:        "high",
	PriorityAboveNormal: "above normal",
	PriorityNormal:      "normal",
	PriorityBelowNormal: "below normal",
	PriorityLow:         "low",
	PriorityVeryLow:     "very low",
	PriorityMinimal:     "minimal",
	PriorityOptional:    "optional",
}

func NewPriority(value int) (Priority, error) {
	if value < int(PriorityCritical) || value > int(PriorityOptional) {
		return 0, fmt.Errorf("priority %d out of range [%d,%d]", value, PriorityCritical, PriorityOptional)
	}
	return Priority(value), nil
}

func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityOptional
}

// MoreImportantThan reports whether p wins a preemption contest against other.
func (p Priority) MoreImportantThan(other Priority) bool {
	return p < other
}

func (p Priority) Label() string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return fmt.Sprintf("priority %d", p)
}
