package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/solarplanner/solarplanner/pkg/calendar"
	"github.com/solarplanner/solarplanner/pkg/pattern"
	"github.com/solarplanner/solarplanner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) types.Settings {
	t.Helper()
	s, _, err := types.MigrateSettings(types.Settings{}, 0)
	require.NoError(t, err)
	return s
}

// mondayHabitSet mines a set with four Monday 10:00 cycles.
func mondayHabitSet(t *testing.T) (*pattern.Set, types.DeviceStatistics) {
	t.Helper()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var cycles []types.Cycle
	for i := 0; i < 4; i++ {
		start := base.AddDate(0, 0, 7*i)
		cycles = append(cycles, types.Cycle{
			Device:      "washing_machine",
			Start:       start,
			End:         start.Add(50 * time.Minute),
			DurationMin: 50,
			EnergyKWH:   0.9,
		})
	}
	set, stats, err := pattern.Mine(context.Background(), "washing_machine", cycles, 0.6)
	require.NoError(t, err)
	return set, stats
}

// middayForecast produces energy at hours 10-15 for each day of the horizon.
func middayForecast(start time.Time, days int) []types.SolarPoint {
	var points []types.SolarPoint
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h++ {
			var kwh float64
			if h >= 10 && h <= 15 {
				kwh = 2.0
			}
			points = append(points, types.SolarPoint{
				Time:      midnight.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour),
				EnergyKWH: kwh,
			})
		}
	}
	return points
}

func TestLinearModel(t *testing.T) {
	m := NewLinearModel(defaultSettings(t))

	low := m.Score(Features{HabitStrength: 0.2, SolarSurplus: 0.5})
	high := m.Score(Features{HabitStrength: 0.9, SolarSurplus: 0.5})
	assert.Greater(t, high, low, "stronger habit must score higher")

	sunless := m.Score(Features{HabitStrength: 0.5, SolarSurplus: 0})
	sunny := m.Score(Features{HabitStrength: 0.5, SolarSurplus: 1})
	assert.Greater(t, sunny, sunless, "more surplus must score higher")

	plain := m.Score(Features{HabitStrength: 0.5, SolarSurplus: 0.5})
	holiday := m.Score(Features{HabitStrength: 0.5, SolarSurplus: 0.5, Holiday: true})
	assert.InDelta(t, m.HolidayWeight*m.HolidayBoost, holiday-plain, 1e-9)
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()
	settings := defaultSettings(t)
	set, stats := mondayHabitSet(t)
	cal := calendar.NewContext(calendar.NewStaticSource())

	// Sunday 2026-03-29 08:00, so Monday is the second horizon day
	now := time.Date(2026, 3, 29, 8, 0, 0, 0, time.UTC)
	forecast := middayForecast(now, settings.HorizonDays)

	s := NewScorer(settings, cal, NewStore())
	recs := s.Recommend(ctx, "washing_machine", set, stats, forecast, now)
	require.NotEmpty(t, recs)

	// top slot is the Monday habit hour with full surplus
	top := recs[0]
	assert.Equal(t, "2026-03-30", top.Date)
	assert.Equal(t, "10:00", top.Time)
	assert.Equal(t, "monday", top.Day)
	assert.True(t, top.Habit)
	assert.False(t, top.Holiday)
	assert.InDelta(t, stats.AvgEnergyKWH, top.EnergyKWH, 1e-9)

	perDay := map[string]int{}
	for i, r := range recs {
		perDay[r.Date]++
		if i > 0 {
			prev := recs[i-1]
			if prev.Score == r.Score {
				assert.LessOrEqual(t, prev.Date+prev.Time, r.Date+r.Time)
			} else {
				assert.Greater(t, prev.Score, r.Score)
			}
		}
		assert.False(t, mustParse(t, r).Before(now), "recommendations must be in the future")
	}
	for date, n := range perDay {
		assert.LessOrEqual(t, n, settings.MaxSlotsPerDay, "too many slots on %s", date)
	}
}

func mustParse(t *testing.T, r types.Recommendation) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", r.Date+" "+r.Time)
	require.NoError(t, err)
	return ts
}

func TestRecommendHolidayFlag(t *testing.T) {
	ctx := context.Background()
	settings := defaultSettings(t)
	set, stats := mondayHabitSet(t)
	cal := calendar.NewContext(calendar.NewStaticSource("2026-03-30"))

	now := time.Date(2026, 3, 29, 8, 0, 0, 0, time.UTC)
	forecast := middayForecast(now, settings.HorizonDays)

	s := NewScorer(settings, cal, NewStore())
	recs := s.Recommend(ctx, "washing_machine", set, stats, forecast, now)
	require.NotEmpty(t, recs)

	for _, r := range recs {
		assert.Equal(t, r.Date == "2026-03-30", r.Holiday)
	}
}

func TestRecommendZeroProduction(t *testing.T) {
	ctx := context.Background()
	settings := defaultSettings(t)
	set, stats := mondayHabitSet(t)
	cal := calendar.NewContext(calendar.NewStaticSource())

	now := time.Date(2026, 3, 29, 8, 0, 0, 0, time.UTC)

	s := NewScorer(settings, cal, NewStore())
	recs := s.Recommend(ctx, "washing_machine", set, stats, nil, now)
	require.NotEmpty(t, recs, "habit alone still yields recommendations")

	// with no production anywhere, only habit hours can score
	m := NewLinearModel(settings)
	for _, r := range recs {
		assert.Equal(t, "2026-03-30", r.Date)
		hour := mustParse(t, r).Hour()
		expected := m.Score(Features{HabitStrength: set.HabitStrength(time.Monday, hour)})
		assert.InDelta(t, expected, r.Score, 1e-9)
	}
}

func TestBonusThreshold(t *testing.T) {
	settings := defaultSettings(t)

	t.Run("no production means no threshold", func(t *testing.T) {
		points := []types.SolarPoint{
			{Time: time.Now(), EnergyKWH: 0},
			{Time: time.Now().Add(time.Hour), EnergyKWH: 0},
		}
		_, ok := BonusThreshold(points, 0.4, settings)
		assert.False(t, ok)
	})

	t.Run("fraction of high window", func(t *testing.T) {
		base := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
		// peak 4.0, high window (>= 2.0) sums to 4+3+3 = 10
		values := []float64{0.5, 3.0, 4.0, 3.0, 1.0}
		var points []types.SolarPoint
		for i, v := range values {
			points = append(points, types.SolarPoint{Time: base.Add(time.Duration(i) * time.Hour), EnergyKWH: v})
		}

		threshold, ok := BonusThreshold(points, 0.4, settings)
		require.True(t, ok)
		// 0.3 * 10 = 3.0 beats the 0.4 + 1.0 floor
		assert.InDelta(t, 3.0, threshold, 1e-9)
	})

	t.Run("baseline floor wins on weak days", func(t *testing.T) {
		base := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
		points := []types.SolarPoint{
			{Time: base.Add(10 * time.Hour), EnergyKWH: 0.8},
			{Time: base.Add(12 * time.Hour), EnergyKWH: 1.0},
		}

		threshold, ok := BonusThreshold(points, 2.0, settings)
		require.True(t, ok)
		// 0.3 * 1.8 = 0.54 < 2.0 + 1.0
		assert.InDelta(t, 3.0, threshold, 1e-9)
	})
}

func TestTrain(t *testing.T) {
	settings := defaultSettings(t)
	set, stats := mondayHabitSet(t)

	t.Run("cold start", func(t *testing.T) {
		_, err := Train("washing_machine", set, [24]float64{}, settings.MinTrainCycles, DefaultTrainConfig())
		assert.ErrorIs(t, err, ErrInsufficientHistory)
	})

	surplus := SurplusByHour(middayForecast(time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), 7), stats.AvgEnergyKWH)

	e, err := Train("washing_machine", set, surplus, 1, DefaultTrainConfig())
	require.NoError(t, err)
	assert.Equal(t, CurrentArtifactVersion, e.Version)
	assert.Equal(t, 24*7, e.Samples)

	habitSlot := Features{HabitStrength: 1.0, SolarSurplus: 1.0, Weekday: time.Monday, Hour: 10}
	deadSlot := Features{HabitStrength: 0, SolarSurplus: 0, Weekday: time.Wednesday, Hour: 3}
	assert.Greater(t, e.Score(habitSlot), e.Score(deadSlot))

	t.Run("roundtrip", func(t *testing.T) {
		b, err := e.Marshal()
		require.NoError(t, err)
		loaded, err := UnmarshalEnsemble(b)
		require.NoError(t, err)
		assert.InDelta(t, e.Score(habitSlot), loaded.Score(habitSlot), 1e-9)
		assert.InDelta(t, e.Score(deadSlot), loaded.Score(deadSlot), 1e-9)
	})

	t.Run("bad version", func(t *testing.T) {
		_, err := UnmarshalEnsemble([]byte(`{"version": 99}`))
		assert.Error(t, err)
	})
}

func TestStore(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("washing_machine")
	assert.False(t, ok)

	m := &LinearModel{HabitWeight: 1}
	s.Set("washing_machine", m)
	got, ok := s.Get("washing_machine")
	require.True(t, ok)
	assert.Same(t, m, got.(*LinearModel))
}
