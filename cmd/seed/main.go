package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/storage"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// Seeds four weeks of synthetic consumption streams into the Firestore
// emulator so the API has something to detect and mine against locally.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -28)

	// Washing machine: Monday and Thursday mornings around 10:00.
	var washer []types.ConsumptionSample
	for day := start; day.Before(now); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd != time.Monday && wd != time.Thursday {
			continue
		}
		runStart := day.Add(10*time.Hour + time.Duration(rng.Intn(30))*time.Minute)
		washer = append(washer, applianceRun(rng, "washing_machine", runStart, 50*time.Minute, 1100)...)
	}
	if err := s.UpsertSamples(ctx, types.HomeIDDefault, "washing_machine", washer); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed washing machine", slog.Any("error", err))
		os.Exit(1)
	}

	// Dishwasher: most evenings around 20:30.
	var dishes []types.ConsumptionSample
	for day := start; day.Before(now); day = day.AddDate(0, 0, 1) {
		if rng.Float64() < 0.2 {
			continue // skipped a night
		}
		runStart := day.Add(20*time.Hour + 30*time.Minute + time.Duration(rng.Intn(20))*time.Minute)
		dishes = append(dishes, applianceRun(rng, "dishwasher", runStart, 90*time.Minute, 900)...)
	}
	if err := s.UpsertSamples(ctx, types.HomeIDDefault, "dishwasher", dishes); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed dishwasher", slog.Any("error", err))
		os.Exit(1)
	}

	// Fridge: continuous baseline load sampled every 30 minutes.
	var fridge []types.ConsumptionSample
	for t := start; t.Before(now); t = t.Add(30 * time.Minute) {
		powerW := 40 + rng.Float64()*15
		fridge = append(fridge, types.ConsumptionSample{
			Device:    "fridge",
			Timestamp: t,
			PowerW:    powerW,
			EnergyKWH: powerW / 1000 * 0.5,
		})
	}
	if err := s.UpsertSamples(ctx, types.HomeIDDefault, "fridge", fridge); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed fridge", slog.Any("error", err))
		os.Exit(1)
	}

	settings, _, err := types.MigrateSettings(types.Settings{}, 0)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build settings", slog.Any("error", err))
		os.Exit(1)
	}
	if err := s.SetSettings(ctx, types.HomeIDDefault, settings, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", slog.Any("error", err))
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data",
		slog.Int("washing_machine_samples", len(washer)),
		slog.Int("dishwasher_samples", len(dishes)),
		slog.Int("fridge_samples", len(fridge)),
	)

	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
}

// applianceRun emits 5-minute samples over one run of the appliance, with an
// idle sample on either side so detection sees clean edges.
func applianceRun(rng *rand.Rand, device types.DeviceID, start time.Time, duration time.Duration, avgPowerW float64) []types.ConsumptionSample {
	const step = 5 * time.Minute

	samples := []types.ConsumptionSample{{
		Device:    device,
		Timestamp: start.Add(-step),
		PowerW:    2,
	}}
	for t := start; t.Before(start.Add(duration)); t = t.Add(step) {
		powerW := avgPowerW * (0.7 + rng.Float64()*0.6)
		samples = append(samples, types.ConsumptionSample{
			Device:    device,
			Timestamp: t,
			PowerW:    powerW,
			EnergyKWH: powerW / 1000 * step.Hours(),
		})
	}
	samples = append(samples, types.ConsumptionSample{
		Device:    device,
		Timestamp: start.Add(duration),
		PowerW:    3,
	})
	return samples
}
