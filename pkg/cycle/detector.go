package cycle

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/solarplanner/solarplanner/pkg/device"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// Result holds the detected cycles plus a count of the malformed samples
// (non-monotonic timestamps, negative readings) that were skipped.
type Result struct {
	Cycles         []types.Cycle
	SkippedSamples int
}

// Detect segments one device's ordered consumption stream into usage cycles.
//
// A cycle starts when the instantaneous reading rises to the on-threshold and
// ends when it stays below the off-threshold for the hysteresis window, or
// when the stream goes silent for longer than the allowed gap. Cycles shorter
// than the minimum duration or with less than the minimum energy are dropped
// as noise. Malformed samples are skipped and counted, never fatal; an empty
// stream yields an empty result.
func Detect(ctx context.Context, id types.DeviceID, samples []types.ConsumptionSample, cfg device.Config) Result {
	var res Result

	var (
		active     bool
		start      time.Time
		energy     float64
		belowSince time.Time
		prevTS     time.Time
	)

	closeCycle := func(end time.Time) {
		active = false
		belowSince = time.Time{}
		if !end.After(start) {
			return
		}
		dur := end.Sub(start)
		if dur < cfg.MinDuration {
			return
		}
		// readings can jitter negative in aggregate, never report that
		e := math.Max(energy, 0)
		if e < cfg.MinEnergyKWH {
			return
		}
		res.Cycles = append(res.Cycles, types.Cycle{
			Device:      id,
			Start:       start,
			End:         end,
			DurationMin: dur.Minutes(),
			EnergyKWH:   e,
		})
	}

	for _, s := range samples {
		if !prevTS.IsZero() && !s.Timestamp.After(prevTS) {
			res.SkippedSamples++
			continue
		}
		if s.PowerW < 0 || s.EnergyKWH < 0 {
			res.SkippedSamples++
			continue
		}

		// a long outage must not produce one giant cycle spanning it
		if active && cfg.MaxSilence > 0 && !prevTS.IsZero() && s.Timestamp.Sub(prevTS) > cfg.MaxSilence {
			closeCycle(prevTS)
		}

		if active {
			if s.EnergyKWH > 0 {
				energy += s.EnergyKWH
			} else if !prevTS.IsZero() {
				energy += s.PowerW / 1000 * s.Timestamp.Sub(prevTS).Hours()
			}

			if s.PowerW < cfg.OffThresholdW {
				if belowSince.IsZero() {
					belowSince = s.Timestamp
				}
				if s.Timestamp.Sub(belowSince) >= cfg.Hysteresis {
					closeCycle(belowSince)
				}
			} else {
				// back above the off-threshold, the dip was transient
				belowSince = time.Time{}
			}
		} else if s.PowerW >= cfg.OnThresholdW {
			active = true
			start = s.Timestamp
			energy = s.EnergyKWH
			belowSince = time.Time{}
		}

		prevTS = s.Timestamp
	}

	// stream ended while still active
	if active {
		closeCycle(prevTS)
	}

	if res.SkippedSamples > 0 {
		log.Ctx(ctx).WarnContext(
			ctx,
			"skipped malformed consumption samples",
			slog.String("device", string(id)),
			slog.Int("skipped", res.SkippedSamples),
			slog.Int("total", len(samples)),
		)
	}

	return res
}
