package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/solarplanner/solarplanner/pkg/device"
	"github.com/solarplanner/solarplanner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = device.Config{
	OnThresholdW:  80,
	OffThresholdW: 20,
	MinDuration:   time.Minute,
	MinEnergyKWH:  0.1,
	MaxSilence:    30 * time.Minute,
	Hysteresis:    3 * time.Minute,
}

func sampleAt(base time.Time, offset time.Duration, powerW, energyKWH float64) types.ConsumptionSample {
	return types.ConsumptionSample{
		Device:    "washing_machine",
		Timestamp: base.Add(offset),
		PowerW:    powerW,
		EnergyKWH: energyKWH,
	}
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // a Monday

	t.Run("empty input yields empty result", func(t *testing.T) {
		res := Detect(ctx, "washing_machine", nil, testConfig)
		assert.Empty(t, res.Cycles)
		assert.Zero(t, res.SkippedSamples)
	})

	t.Run("single 50 minute episode", func(t *testing.T) {
		var samples []types.ConsumptionSample
		// 1800W for 50 minutes, 0.09 kWh per 5-minute sample = 0.9 kWh total
		for m := 0; m < 50; m += 5 {
			samples = append(samples, sampleAt(base, time.Duration(m)*time.Minute, 1800, 0.09))
		}
		// power drops and stays down past the hysteresis window
		samples = append(samples,
			sampleAt(base, 50*time.Minute, 0, 0),
			sampleAt(base, 55*time.Minute, 0, 0),
		)

		res := Detect(ctx, "washing_machine", samples, testConfig)
		require.Len(t, res.Cycles, 1)
		c := res.Cycles[0]
		assert.Equal(t, base, c.Start)
		assert.Equal(t, base.Add(50*time.Minute), c.End)
		assert.InDelta(t, 50.0, c.DurationMin, 0.001)
		assert.InDelta(t, 0.9, c.EnergyKWH, 0.001)
	})

	t.Run("transient dip does not split the cycle", func(t *testing.T) {
		samples := []types.ConsumptionSample{
			sampleAt(base, 0, 1800, 0.15),
			sampleAt(base, 5*time.Minute, 1800, 0.15),
			// a dip shorter than the hysteresis window
			sampleAt(base, 6*time.Minute, 5, 0),
			sampleAt(base, 7*time.Minute, 1800, 0.15),
			sampleAt(base, 12*time.Minute, 1800, 0.15),
			sampleAt(base, 13*time.Minute, 0, 0),
			sampleAt(base, 20*time.Minute, 0, 0),
		}
		res := Detect(ctx, "washing_machine", samples, testConfig)
		require.Len(t, res.Cycles, 1)
		assert.Equal(t, base.Add(13*time.Minute), res.Cycles[0].End)
	})

	t.Run("short noise cycle is discarded", func(t *testing.T) {
		samples := []types.ConsumptionSample{
			sampleAt(base, 0, 1800, 0.01),
			sampleAt(base, 10*time.Second, 0, 0),
			sampleAt(base, 5*time.Minute, 0, 0),
		}
		res := Detect(ctx, "washing_machine", samples, testConfig)
		assert.Empty(t, res.Cycles)
	})

	t.Run("silence gap force-closes the cycle", func(t *testing.T) {
		samples := []types.ConsumptionSample{
			sampleAt(base, 0, 1800, 0.2),
			sampleAt(base, 10*time.Minute, 1800, 0.2),
			// a 2 hour outage, then the device happens to be running again
			sampleAt(base, 130*time.Minute, 1800, 0.2),
			sampleAt(base, 140*time.Minute, 1800, 0.2),
			sampleAt(base, 141*time.Minute, 0, 0),
			sampleAt(base, 150*time.Minute, 0, 0),
		}
		res := Detect(ctx, "washing_machine", samples, testConfig)
		require.Len(t, res.Cycles, 2)
		assert.Equal(t, base.Add(10*time.Minute), res.Cycles[0].End)
		assert.Equal(t, base.Add(130*time.Minute), res.Cycles[1].Start)
	})

	t.Run("malformed samples are skipped and counted", func(t *testing.T) {
		samples := []types.ConsumptionSample{
			sampleAt(base, 0, 1800, 0.3),
			// timestamp going backwards
			sampleAt(base, -5*time.Minute, 1800, 0.3),
			// negative reading
			sampleAt(base, 5*time.Minute, -100, 0),
			sampleAt(base, 10*time.Minute, 1800, 0.3),
			sampleAt(base, 11*time.Minute, 0, 0),
			sampleAt(base, 20*time.Minute, 0, 0),
		}
		res := Detect(ctx, "washing_machine", samples, testConfig)
		require.Len(t, res.Cycles, 1)
		assert.Equal(t, 2, res.SkippedSamples)
	})

	t.Run("idempotent", func(t *testing.T) {
		samples := []types.ConsumptionSample{
			sampleAt(base, 0, 1800, 0.3),
			sampleAt(base, 20*time.Minute, 1800, 0.3),
			sampleAt(base, 21*time.Minute, 0, 0),
			sampleAt(base, 30*time.Minute, 0, 0),
		}
		first := Detect(ctx, "washing_machine", samples, testConfig)
		second := Detect(ctx, "washing_machine", samples, testConfig)
		assert.Equal(t, first, second)
	})

	t.Run("cycles are ordered and non-overlapping", func(t *testing.T) {
		var samples []types.ConsumptionSample
		for d := 0; d < 3; d++ {
			dayStart := time.Duration(d) * 24 * time.Hour
			samples = append(samples,
				sampleAt(base, dayStart, 1800, 0.3),
				sampleAt(base, dayStart+30*time.Minute, 1800, 0.3),
				sampleAt(base, dayStart+31*time.Minute, 0, 0),
				sampleAt(base, dayStart+40*time.Minute, 0, 0),
			)
		}
		res := Detect(ctx, "washing_machine", samples, testConfig)
		require.Len(t, res.Cycles, 3)
		for i := 1; i < len(res.Cycles); i++ {
			assert.True(t, res.Cycles[i].Start.After(res.Cycles[i-1].End),
				"cycle %d overlaps or precedes cycle %d", i, i-1)
		}
		for _, c := range res.Cycles {
			assert.GreaterOrEqual(t, c.DurationMin, testConfig.MinDuration.Minutes())
		}
	})
}
