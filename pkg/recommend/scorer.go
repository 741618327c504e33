package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/solarplanner/solarplanner/pkg/calendar"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/pattern"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// Scorer turns a device's mined patterns, the solar forecast, and the
// calendar into ranked run recommendations. It prefers a trained model for
// the device and falls back to the weighted linear blend when none exists.
type Scorer struct {
	settings types.Settings
	cal      *calendar.Context
	models   *Store
}

// NewScorer builds a Scorer.
func NewScorer(settings types.Settings, cal *calendar.Context, models *Store) *Scorer {
	if models == nil {
		models = NewStore()
	}
	return &Scorer{settings: settings, cal: cal, models: models}
}

// Models exposes the model store so retraining can swap in new models.
func (s *Scorer) Models() *Store {
	return s.models
}

// Recommend scores every future (date, hour) slot in the horizon and returns
// up to MaxSlotsPerDay recommendations per day, ordered by score descending
// with date then hour breaking ties.
func (s *Scorer) Recommend(ctx context.Context, device types.DeviceID, set *pattern.Set, stats types.DeviceStatistics, forecast []types.SolarPoint, now time.Time) []types.Recommendation {
	estEnergy := stats.AvgEnergyKWH
	if estEnergy <= 0 {
		estEnergy = s.settings.DefaultCycleEnergyKWH
	}

	model, trained := s.models.Get(device)
	if !trained {
		model = NewLinearModel(s.settings)
	}

	production := productionBySlot(forecast)

	var recs []types.Recommendation
	for d := 0; d < s.settings.HorizonDays; d++ {
		date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, d)
		holiday := s.cal.IsHoliday(ctx, date)

		var day []types.Recommendation
		for hour := 0; hour < 24; hour++ {
			slot := date.Add(time.Duration(hour) * time.Hour)
			if !slot.After(now) {
				continue
			}

			f := Features{
				HabitStrength: set.HabitStrength(date.Weekday(), hour),
				SolarSurplus:  surplusRatio(production[slotKey(date, hour)], estEnergy),
				Weekday:       date.Weekday(),
				Hour:          hour,
				Holiday:       holiday,
			}
			score := model.Score(f)
			if score <= 0 {
				continue
			}

			day = append(day, types.Recommendation{
				Device:    device,
				Date:      date.Format("2006-01-02"),
				Time:      slot.Format("15:04"),
				Day:       types.WeekdayLabel(date.Weekday()),
				EnergyKWH: estEnergy,
				Score:     score,
				Holiday:   holiday,
				Habit:     calendar.IsHabitSlot(date, hour, set),
			})
		}

		sort.SliceStable(day, func(i, j int) bool {
			if day[i].Score != day[j].Score {
				return day[i].Score > day[j].Score
			}
			return day[i].Time < day[j].Time
		})
		if len(day) > s.settings.MaxSlotsPerDay {
			day = day[:s.settings.MaxSlotsPerDay]
		}
		recs = append(recs, day...)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].Date != recs[j].Date {
			return recs[i].Date < recs[j].Date
		}
		return recs[i].Time < recs[j].Time
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"scored recommendations",
		slog.String("device", string(device)),
		slog.Bool("trained_model", trained),
		slog.Int("recommendations", len(recs)),
	)

	return recs
}

// SurplusByHour averages the forecast's surplus ratio per hour of day across
// all forecast days, the shape training consumes.
func SurplusByHour(forecast []types.SolarPoint, estEnergyKWH float64) [24]float64 {
	var sums [24]float64
	var counts [24]int
	for _, p := range forecast {
		h := p.Time.Hour()
		sums[h] += surplusRatio(p.EnergyKWH, estEnergyKWH)
		counts[h]++
	}
	var out [24]float64
	for h := 0; h < 24; h++ {
		if counts[h] > 0 {
			out[h] = sums[h] / float64(counts[h])
		}
	}
	return out
}

// BonusThreshold computes the production level above which surplus energy
// counts toward the utility bonus. On days with no production at all there
// is no threshold and ok is false.
func BonusThreshold(forecast []types.SolarPoint, baselineKWH float64, s types.Settings) (threshold float64, ok bool) {
	var total, peak float64
	for _, p := range forecast {
		total += p.EnergyKWH
		if p.EnergyKWH > peak {
			peak = p.EnergyKWH
		}
	}
	if total <= 0 {
		return 0, false
	}

	var highSum float64
	for _, p := range forecast {
		if p.EnergyKWH >= s.BonusHighWindowFraction*peak {
			highSum += p.EnergyKWH
		}
	}

	threshold = s.BonusMinOnSiteFraction * highSum
	if floor := baselineKWH + s.BonusReserveKWH; floor > threshold {
		threshold = floor
	}
	return threshold, true
}

func surplusRatio(productionKWH, estEnergyKWH float64) float64 {
	if estEnergyKWH <= 0 {
		return 0
	}
	r := productionKWH / estEnergyKWH
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

func slotKey(date time.Time, hour int) string {
	return fmt.Sprintf("%s-%02d", date.Format("2006-01-02"), hour)
}

func productionBySlot(forecast []types.SolarPoint) map[string]float64 {
	out := make(map[string]float64, len(forecast))
	for _, p := range forecast {
		out[slotKey(p.Time, p.Time.Hour())] = p.EnergyKWH
	}
	return out
}
