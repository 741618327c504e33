package pattern

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// ErrNoHistory is returned when a device has no cycles at all. Callers must
// render this as an explicit "no pattern available" condition instead of an
// empty-looking success.
var ErrNoHistory = errors.New("no usage history for device")

// HabitWindow is the contiguous hour range with historically the most cycles
// for a device on a given weekday. Start and End are inclusive hours of day.
type HabitWindow struct {
	Day   time.Weekday
	Start int
	End   int
	// PeakCount is the cycle count of the busiest hour in the window.
	PeakCount int
}

// Contains reports whether the hour falls inside the window.
func (w HabitWindow) Contains(hour int) bool {
	return hour >= w.Start && hour <= w.End
}

// Set holds the mined patterns of one device: one DayPattern per weekday that
// has at least one cycle, plus the derived habit windows.
type Set struct {
	Device types.DeviceID

	days    map[time.Weekday]types.DayPattern
	windows map[time.Weekday]HabitWindow
	counts  map[time.Weekday][24]int
	// busiest is the highest (weekday, hour) bucket count across the set,
	// used to normalize habit strength.
	busiest int
}

// Mine aggregates a device's cycles into per-weekday hour histograms and
// summary statistics. Weekdays without cycles are omitted entirely. A device
// with zero cycles returns ErrNoHistory.
//
// windowFraction controls the habit window width: hours adjacent to the peak
// whose count is at least windowFraction*peak extend the window.
func Mine(ctx context.Context, id types.DeviceID, cycles []types.Cycle, windowFraction float64) (*Set, types.DeviceStatistics, error) {
	if len(cycles) == 0 {
		return nil, types.DeviceStatistics{}, ErrNoHistory
	}
	if windowFraction <= 0 || windowFraction > 1 {
		windowFraction = 0.6
	}

	s := &Set{
		Device:  id,
		days:    make(map[time.Weekday]types.DayPattern),
		windows: make(map[time.Weekday]HabitWindow),
		counts:  make(map[time.Weekday][24]int),
	}

	var totalDuration, totalEnergy float64
	for _, c := range cycles {
		wd := c.Start.Weekday()
		hour := c.Start.Hour()
		counts := s.counts[wd]
		counts[hour]++
		s.counts[wd] = counts
		if counts[hour] > s.busiest {
			s.busiest = counts[hour]
		}
		totalDuration += c.DurationMin
		totalEnergy += c.EnergyKWH
	}

	for wd, counts := range s.counts {
		var buckets []types.HourBucket
		total := 0
		for h := 0; h < 24; h++ {
			if counts[h] == 0 {
				continue
			}
			buckets = append(buckets, types.HourBucket{Hour: h, CycleCount: counts[h]})
			total += counts[h]
		}
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour < buckets[j].Hour })
		s.days[wd] = types.DayPattern{
			Day:         types.WeekdayLabel(wd),
			Hours:       buckets,
			TotalCycles: total,
		}
		s.windows[wd] = deriveWindow(wd, counts, windowFraction)
	}

	stats := types.DeviceStatistics{
		AvgDurationMin: totalDuration / float64(len(cycles)),
		AvgEnergyKWH:   totalEnergy / float64(len(cycles)),
		CycleCount:     len(cycles),
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"mined usage patterns",
		slog.String("device", string(id)),
		slog.Int("cycles", len(cycles)),
		slog.Int("weekdays", len(s.days)),
	)

	return s, stats, nil
}

// deriveWindow finds the peak hour (earliest wins ties) and extends it to
// contiguous neighbors that are close enough to the peak.
func deriveWindow(wd time.Weekday, counts [24]int, fraction float64) HabitWindow {
	peakHour := 0
	peakCount := 0
	for h := 0; h < 24; h++ {
		if counts[h] > peakCount {
			peakCount = counts[h]
			peakHour = h
		}
	}

	minCount := int(float64(peakCount) * fraction)
	if minCount < 1 {
		minCount = 1
	}
	start, end := peakHour, peakHour
	for start > 0 && counts[start-1] >= minCount {
		start--
	}
	for end < 23 && counts[end+1] >= minCount {
		end++
	}

	return HabitWindow{Day: wd, Start: start, End: end, PeakCount: peakCount}
}

// Days returns the patterns keyed by weekday label, the shape the
// presentation layer consumes.
func (s *Set) Days() map[string]types.DayPattern {
	out := make(map[string]types.DayPattern, len(s.days))
	for wd, p := range s.days {
		out[types.WeekdayLabel(wd)] = p
	}
	return out
}

// Day returns the pattern for one weekday, if any cycles exist for it.
func (s *Set) Day(wd time.Weekday) (types.DayPattern, bool) {
	p, ok := s.days[wd]
	return p, ok
}

// HabitWindow returns the derived habit window for a weekday.
func (s *Set) HabitWindow(wd time.Weekday) (HabitWindow, bool) {
	w, ok := s.windows[wd]
	return w, ok
}

// TotalCycles returns the number of cycles across all weekdays.
func (s *Set) TotalCycles() int {
	total := 0
	for _, p := range s.days {
		total += p.TotalCycles
	}
	return total
}

// HabitStrength returns the (weekday, hour) bucket's cycle count normalized
// against the busiest bucket of the whole set, in [0, 1].
func (s *Set) HabitStrength(wd time.Weekday, hour int) float64 {
	if s.busiest == 0 || hour < 0 || hour > 23 {
		return 0
	}
	counts, ok := s.counts[wd]
	if !ok {
		return 0
	}
	return float64(counts[hour]) / float64(s.busiest)
}
