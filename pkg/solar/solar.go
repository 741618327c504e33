package solar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// ErrForecastUnavailable is returned when no forecast source, including the
// simulated fallback, could produce a curve for the horizon.
var ErrForecastUnavailable = errors.New("solar forecast unavailable")

// Provider supplies the hourly production forecast for a horizon of dates.
// Points are strictly increasing in time, one per hour of each day, and never
// negative. The simulated curve and the live open-meteo source are
// interchangeable implementations.
type Provider interface {
	Forecast(ctx context.Context, start time.Time, days int) ([]types.SolarPoint, error)
}

// Map selects the configured forecast source and handles falling back to the
// simulated curve when the live source fails.
type Map struct {
	provider  string
	live      Provider
	simulated Provider
}

// Configured sets up the forecast providers based on flags.
func Configured() *Map {
	m := &Map{}
	provider := lflag.String("solar-provider", "simulated", "Solar forecast provider to use (available: simulated, openmeteo)")
	m.simulated = configuredSimulated()
	om := configuredOpenMeteo()

	lflag.Do(func() {
		m.provider = *provider
		switch m.provider {
		case "simulated":
		case "openmeteo":
			if err := om.Validate(); err != nil {
				panic(fmt.Sprintf("openmeteo validation failed: %v", err))
			}
			m.live = om
		default:
			panic(fmt.Sprintf("unknown solar provider: %s", m.provider))
		}
	})

	return m
}

// NewMap creates a Map with explicit providers, for tests.
func NewMap(live, simulated Provider) *Map {
	provider := "simulated"
	if live != nil {
		provider = "openmeteo"
	}
	return &Map{provider: provider, live: live, simulated: simulated}
}

// Forecast returns the hourly curve for the horizon, preferring the live
// source and logging (not propagating) its failure before falling back.
func (m *Map) Forecast(ctx context.Context, start time.Time, days int) ([]types.SolarPoint, error) {
	if days <= 0 {
		return nil, ErrForecastUnavailable
	}

	if m.live != nil {
		points, err := m.live.Forecast(ctx, start, days)
		if err == nil {
			return normalize(points), nil
		}
		log.Ctx(ctx).WarnContext(
			ctx,
			"live solar forecast failed, falling back to simulated curve",
			slog.Any("error", err),
		)
	}

	if m.simulated == nil {
		return nil, ErrForecastUnavailable
	}
	points, err := m.simulated.Forecast(ctx, start, days)
	if err != nil {
		return nil, errors.Join(ErrForecastUnavailable, err)
	}
	return normalize(points), nil
}

// normalize enforces the contract at the boundary: strictly increasing
// timestamps and non-negative values.
func normalize(points []types.SolarPoint) []types.SolarPoint {
	out := make([]types.SolarPoint, 0, len(points))
	var last time.Time
	for _, p := range points {
		if !last.IsZero() && !p.Time.After(last) {
			continue
		}
		if p.EnergyKWH < 0 {
			p.EnergyKWH = 0
		}
		out = append(out, p)
		last = p.Time
	}
	return out
}
