package device

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// ErrUnknownDevice is returned when an identifier does not resolve to a
// registered appliance. Callers must surface this as its own failure reason
// rather than defaulting to some device.
var ErrUnknownDevice = errors.New("unknown device")

// Config holds the per-appliance cycle-detection tuning.
type Config struct {
	// A sample at or above OnThresholdW starts a cycle.
	OnThresholdW float64 `json:"onThresholdW"`
	// A sample below OffThresholdW (sustained for Hysteresis) ends it.
	OffThresholdW float64 `json:"offThresholdW"`
	// Cycles shorter than MinDuration are treated as noise.
	MinDuration time.Duration `json:"minDuration"`
	// Cycles with less total energy than this are treated as noise (kWh).
	MinEnergyKWH float64 `json:"minEnergyKWH"`
	// A gap between samples longer than MaxSilence force-closes the cycle.
	MaxSilence time.Duration `json:"maxSilence"`
	// How long the reading must stay below OffThresholdW before the cycle
	// actually ends.
	Hysteresis time.Duration `json:"hysteresis"`
	// Permanent devices are always-on baseline loads (fridge etc). They are
	// never recommended a slot but their draw counts toward the baseline.
	Permanent bool `json:"permanent"`
}

// defaults mirrors the thresholds the appliances were profiled with.
var defaults = map[types.DeviceID]Config{
	"washing_machine": {
		OnThresholdW:  80,
		OffThresholdW: 20,
		MinDuration:   time.Minute,
		MinEnergyKWH:  0.1,
		MaxSilence:    30 * time.Minute,
		Hysteresis:    3 * time.Minute,
	},
	"dishwasher": {
		OnThresholdW:  80,
		OffThresholdW: 20,
		MinDuration:   time.Minute,
		MinEnergyKWH:  0.1,
		MaxSilence:    30 * time.Minute,
		Hysteresis:    3 * time.Minute,
	},
	"fridge": {
		OnThresholdW:  40,
		OffThresholdW: 10,
		MinDuration:   30 * time.Second,
		MinEnergyKWH:  0.01,
		MaxSilence:    30 * time.Minute,
		Hysteresis:    time.Minute,
		Permanent:     true,
	},
	"freezer": {
		OnThresholdW:  40,
		OffThresholdW: 10,
		MinDuration:   30 * time.Second,
		MinEnergyKWH:  0.01,
		MaxSilence:    30 * time.Minute,
		Hysteresis:    time.Minute,
		Permanent:     true,
	},
	"boiler": {
		OnThresholdW:  500,
		OffThresholdW: 100,
		MinDuration:   30 * time.Second,
		MinEnergyKWH:  0.01,
		MaxSilence:    30 * time.Minute,
		Hysteresis:    time.Minute,
		Permanent:     true,
	},
}

// Registry is the closed set of appliances the engine knows about. Free-form
// identifiers from the outside are validated against it at the boundary.
type Registry struct {
	devices map[types.DeviceID]Config
}

// Configured sets up the Registry with the built-in appliance set plus any
// overrides supplied via flags.
func Configured() *Registry {
	r := &Registry{devices: make(map[types.DeviceID]Config, len(defaults))}
	for id, cfg := range defaults {
		r.devices[id] = cfg
	}

	overrides := map[types.DeviceID]Config{}
	lflag.JSON(&overrides, "device-overrides", overrides, "JSON map of device ID to detection config overrides")

	lflag.Do(func() {
		for id, cfg := range overrides {
			r.devices[id] = cfg
		}
	})

	return r
}

// NewRegistry creates a registry with the given devices, for tests.
func NewRegistry(devices map[types.DeviceID]Config) *Registry {
	return &Registry{devices: devices}
}

// Resolve validates an external identifier against the known set.
func (r *Registry) Resolve(id string) (types.DeviceID, Config, error) {
	cfg, ok := r.devices[types.DeviceID(id)]
	if !ok {
		return "", Config{}, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return types.DeviceID(id), cfg, nil
}

// Config returns the detection config for a known device.
func (r *Registry) Config(id types.DeviceID) (Config, bool) {
	cfg, ok := r.devices[id]
	return cfg, ok
}

// Controllable returns the schedulable (non-permanent) devices, sorted.
func (r *Registry) Controllable() []types.DeviceID {
	return r.list(false)
}

// Permanent returns the always-on baseline devices, sorted.
func (r *Registry) Permanent() []types.DeviceID {
	return r.list(true)
}

func (r *Registry) list(permanent bool) []types.DeviceID {
	var ids []types.DeviceID
	for id, cfg := range r.devices {
		if cfg.Permanent == permanent {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
