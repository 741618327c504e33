package types

import "time"

const (
	CurrentCycleHistoryVersion = 1

	// HomeIDDefault is used everywhere until multi-home support exists.
	HomeIDDefault = "default"
)

// DeviceID identifies a monitored appliance.
type DeviceID string

// ConsumptionSample is a single reading from a device's consumption stream.
// Streams are ordered by timestamp; gaps are allowed and do not imply a zero
// reading.
type ConsumptionSample struct {
	Device    DeviceID  `json:"device"`
	Timestamp time.Time `json:"timestamp"`
	// PowerW is the instantaneous draw at Timestamp (W).
	PowerW float64 `json:"powerW"`
	// EnergyKWH is the energy consumed since the previous sample (kWh).
	// Zero when the source only reports instantaneous power.
	EnergyKWH float64 `json:"energyKWH"`
}

// Cycle is one contiguous episode of a device actively drawing power.
// Cycles for a device never overlap and are ordered by Start.
type Cycle struct {
	Device      DeviceID  `json:"device"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"stop"`
	DurationMin float64   `json:"duration_min"`
	EnergyKWH   float64   `json:"energy_kwh"`
}

// HourBucket counts cycles that started within one hour of day.
type HourBucket struct {
	Hour       int `json:"hour"`
	CycleCount int `json:"cycle_count"`
}

// DayPattern aggregates a device's cycles for one weekday. Hours only lists
// buckets with at least one cycle, ordered by hour ascending.
type DayPattern struct {
	Day         string       `json:"day"`
	Hours       []HourBucket `json:"hours"`
	TotalCycles int          `json:"total"`
}

// DeviceStatistics summarizes all cycles of a device. The averages are plain
// arithmetic means and are omitted entirely when CycleCount is zero.
type DeviceStatistics struct {
	AvgDurationMin float64 `json:"avg_duration_min,omitempty"`
	AvgEnergyKWH   float64 `json:"avg_energy_kwh,omitempty"`
	CycleCount     int     `json:"cycle_count"`
}

// SolarPoint is one hour of forecast (or simulated) solar production.
type SolarPoint struct {
	Time      time.Time `json:"time"`
	EnergyKWH float64   `json:"energy_kwh"`
}

// Recommendation is one suggested future slot for running a device. The field
// names are load-bearing: the presentation client groups and re-sorts by them.
type Recommendation struct {
	Device    DeviceID `json:"device"`
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	Day       string   `json:"day"`
	EnergyKWH float64  `json:"energy"`
	Score     float64  `json:"score"`
	Holiday   bool     `json:"holiday"`
	Habit     bool     `json:"habit"`
}

// CommandRecord is one entry of the append-only command log.
type CommandRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	Command   string     `json:"command"`
	Devices   []DeviceID `json:"devices"`
}

// WeekdayLabel returns the lowercase english label used in API responses.
func WeekdayLabel(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
