package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// Registry is an ordered set of devices keyed by name. Devices live in an
// arena slice that keeps insertion order; index maps names to arena slots.
// Readers get copies, the scheduler mutates live devices through Update.
type Registry struct {
	mu      sync.RWMutex
	devices []*domain.Device
	index   map[string]int
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
}

func (r *Registry) Add(device *domain.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[device.Name]; ok {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateName, device.Name)
	}
	r.index[device.Name] = len(r.devices)
	r.devices = append(r.devices, device)
	return nil
}

func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return false
	}
	r.devices = slices.Delete(r.devices, i, i+1)
	r.reindex()
	return true
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.devices))
	for i, d := range r.devices {
		r.index[d.Name] = i
	}
}

// Get returns a copy of the named device.
func (r *Registry) Get(name string) (*domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.devices[i].Clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.devices))
	for i, d := range r.devices {
		names[i] = d.Name
	}
	return names
}

// ByPriority returns copies ordered by ascending priority number.
// Ties keep insertion order.
func (r *Registry) ByPriority() []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(byPriority(r.devices))
}

func (r *Registry) ActiveDevices() []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(activeDevices(r.devices))
}

func (r *Registry) TotalConsumption() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return totalConsumption(r.devices)
}

// Statuses returns a report of every device in insertion order.
func (r *Registry) Statuses(now time.Time) []domain.DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]domain.DeviceStatus, len(r.devices))
	for i, d := range r.devices {
		statuses[i] = domain.StatusOf(d, now)
	}
	return statuses
}

func (r *Registry) Records() []domain.DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]domain.DeviceRecord, len(r.devices))
	for i, d := range r.devices {
		records[i] = domain.RecordOf(d)
	}
	return records
}

// Update runs fn with exclusive access to the live devices.
func (r *Registry) Update(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// Load replaces the registry contents with the records read from source.
// Every record is validated first; on any issue the registry is left
// untouched and a *LoadError is returned.
func (r *Registry) Load(source port.DeviceSource) error {
	records, err := source.LoadDevices()
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}

	loadErr := &LoadError{}
	devices := make([]*domain.Device, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		issues := rec.Issues()
		if prev, ok := seen[rec.Name]; ok && rec.Name != "" {
			issues = append(issues, fmt.Sprintf("duplicate name, already defined by device #%d", prev+1))
		} else {
			seen[rec.Name] = i
		}
		if len(issues) > 0 {
			loadErr.Devices = append(loadErr.Devices, DeviceIssues{Index: i, Name: rec.Name, Issues: issues})
			continue
		}
		d, err := rec.ToDevice()
		if err != nil {
			loadErr.Devices = append(loadErr.Devices, DeviceIssues{Index: i, Name: rec.Name, Issues: []string{err.Error()}})
			continue
		}
		devices = append(devices, d)
	}
	if len(loadErr.Devices) > 0 {
		return loadErr
	}

	for _, d := range devices {
		for _, pair := range d.RangeOverlaps() {
			r.logger.Warn("registry: overlapping time ranges",
				zap.String("device", d.Name),
				zap.String("first", d.AllowedTimeRanges[pair[0]].Short()),
				zap.String("second", d.AllowedTimeRanges[pair[1]].Short()))
		}
	}

	r.mu.Lock()
	r.devices = devices
	r.reindex()
	r.mu.Unlock()
	r.logger.Info("registry: devices loaded", zap.Int("count", len(devices)))
	return nil
}

// Save writes every device configuration to sink and returns the number of records.
func (r *Registry) Save(sink port.DeviceSink) (int, error) {
	records := r.Records()
	if err := sink.SaveDevices(records); err != nil {
		return 0, fmt.Errorf("save devices: %w", err)
	}
	return len(records), nil
}

// Tx gives the scheduler pointer access to live devices while Update holds the lock.
type Tx struct {
	r *Registry
}

func (tx *Tx) Get(name string) *domain.Device {
	i, ok := tx.r.index[name]
	if !ok {
		return nil
	}
	return tx.r.devices[i]
}

func (tx *Tx) All() []*domain.Device {
	return slices.Clone(tx.r.devices)
}

func (tx *Tx) ByPriority() []*domain.Device {
	return byPriority(tx.r.devices)
}

func (tx *Tx) ActiveDevices() []*domain.Device {
	return activeDevices(tx.r.devices)
}

func (tx *Tx) TotalConsumption() float64 {
	return totalConsumption(tx.r.devices)
}

// DeviceIssues lists the problems found in one record of a rejected load.
type DeviceIssues struct {
	Index  int
	Name   string
	Issues []string
}

type LoadError struct {
	Devices []DeviceIssues
}

func (e *LoadError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d device(s) rejected", domain.ErrInvalidConfiguration, len(e.Devices))
	for _, d := range e.Devices {
		name := d.Name
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(&sb, "\n  device #%d %q: %s", d.Index+1, name, strings.Join(d.Issues, "; "))
	}
	return sb.String()
}

func (e *LoadError) Unwrap() error {
	return domain.ErrInvalidConfiguration
}

func byPriority(devices []*domain.Device) []*domain.Device {
	sorted := slices.Clone(devices)
	slices.SortStableFunc(sorted, func(a, b *domain.Device) int {
		return int(a.Priority) - int(b.Priority)
	})
	return sorted
}

func activeDevices(devices []*domain.Device) []*domain.Device {
	var active []*domain.Device
	for _, d := range devices {
		if d.State == domain.DeviceStateOn {
			active = append(active, d)
		}
	}
	return active
}

func totalConsumption(devices []*domain.Device) float64 {
	total := 0.0
	for _, d := range devices {
		if d.State == domain.DeviceStateOn {
			total += d.PowerConsumption
		}
	}
	return total
}

func cloneAll(devices []*domain.Device) []*domain.Device {
	copies := make([]*domain.Device, len(devices))
	for i, d := range devices {
		copies[i] = d.Clone()
	}
	return copies
}
