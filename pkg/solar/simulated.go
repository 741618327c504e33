package solar

import (
	"context"
	"math"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// Simulated produces an hourly daylight curve: near zero outside daylight
// hours, peaking near solar noon, with a mild seasonal swing. It stands in
// whenever no live forecast source is configured or reachable.
type Simulated struct {
	peakKWH       float64
	peakHour      float64
	daylightHours float64
}

// configuredSimulated sets up flags for the simulated curve.
func configuredSimulated() *Simulated {
	s := &Simulated{}
	peakKWH := 4.5
	lflag.JSON(&peakKWH, "solar-sim-peak-kwh", peakKWH, "Peak hourly production of the simulated curve (kWh)")
	peakHour := 13.0
	lflag.JSON(&peakHour, "solar-sim-peak-hour", peakHour, "Hour of day the simulated curve peaks at")
	daylight := 12.0
	lflag.JSON(&daylight, "solar-sim-daylight-hours", daylight, "Reference daylight duration for the simulated curve")

	lflag.Do(func() {
		s.peakKWH = peakKWH
		s.peakHour = peakHour
		s.daylightHours = daylight
	})

	return s
}

// NewSimulated creates a simulated provider with explicit parameters, for tests.
func NewSimulated(peakKWH, peakHour, daylightHours float64) *Simulated {
	return &Simulated{peakKWH: peakKWH, peakHour: peakHour, daylightHours: daylightHours}
}

// Forecast returns one point per hour of each day in the horizon.
func (s *Simulated) Forecast(_ context.Context, start time.Time, days int) ([]types.SolarPoint, error) {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	points := make([]types.SolarPoint, 0, days*24)
	for d := 0; d < days; d++ {
		date := day.AddDate(0, 0, d)
		seasonal := s.seasonalFactor(date)
		for h := 0; h < 24; h++ {
			points = append(points, types.SolarPoint{
				Time:      date.Add(time.Duration(h) * time.Hour),
				EnergyKWH: s.hourly(float64(h)) * seasonal,
			})
		}
	}
	return points, nil
}

// hourly evaluates the bell curve at an hour of day. The standard deviation
// is a quarter of the daylight duration so the tails die out around sunrise
// and sunset.
func (s *Simulated) hourly(hour float64) float64 {
	sigma := s.daylightHours / 4.0
	if sigma <= 0 {
		return 0
	}
	v := s.peakKWH * math.Exp(-math.Pow(hour-s.peakHour, 2)/(2*sigma*sigma))
	// cut the overnight tail instead of emitting tiny non-zero values
	if v < 0.01 {
		return 0
	}
	return v
}

// seasonalFactor scales output by time of year, bottoming out mid-winter.
func (s *Simulated) seasonalFactor(date time.Time) float64 {
	yd := float64(date.YearDay())
	// peak around the june solstice (day ~172)
	return 0.65 + 0.35*math.Cos(2*math.Pi*(yd-172)/365.25)
}
