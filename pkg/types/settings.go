package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// Settings represents the configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Scoring weights for the linear blend. The trained model, when present,
	// replaces the blend but not these fields.
	HabitWeight float64 `json:"habitWeight"`
	SolarWeight float64 `json:"solarWeight"`
	// HolidayWeight scales HolidayBoost into the score.
	HolidayWeight float64 `json:"holidayWeight"`
	// HolidayBoost is the signed holiday adjustment. Positive favors holiday
	// slots, negative de-emphasizes them.
	HolidayBoost float64 `json:"holidayBoost"`

	// Habit window shape: adjacent hours whose cycle count is at least this
	// fraction of the peak hour's count are part of the window.
	HabitWindowFraction float64 `json:"habitWindowFraction"`

	// Horizon and candidate policy
	HorizonDays    int `json:"horizonDays"`
	MaxSlotsPerDay int `json:"maxSlotsPerDay"`
	// How far back to read consumption history when detecting cycles.
	HistoryLookbackDays int `json:"historyLookbackDays"`

	// Bonus/subsidy rule
	// Fraction of high-window production that must be consumed on-site.
	BonusMinOnSiteFraction float64 `json:"bonusMinOnSiteFraction"`
	// An hour counts as a high-production window when its production is at
	// least this fraction of the horizon's peak hour.
	BonusHighWindowFraction float64 `json:"bonusHighWindowFraction"`
	// Reserve added on top of the baseline draw when flooring the threshold.
	BonusReserveKWH float64 `json:"bonusReserveKWH"`

	// Trained model policy
	// Below this many cycles the trained model is skipped (cold start).
	MinTrainCycles int `json:"minTrainCycles"`

	// Fallback per-cycle energy when a device has no statistics yet (kWh).
	DefaultCycleEnergyKWH float64 `json:"defaultCycleEnergyKWH"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial scoring weights and horizon
			if s.HabitWeight == 0 {
				s.HabitWeight = 0.5
				migrated = true
			}
			if s.SolarWeight == 0 {
				s.SolarWeight = 0.35
				migrated = true
			}
			if s.HolidayWeight == 0 {
				s.HolidayWeight = 0.15
				migrated = true
			}
			if s.HolidayBoost == 0 {
				s.HolidayBoost = 1.0
				migrated = true
			}
			if s.HorizonDays == 0 {
				s.HorizonDays = 7
				migrated = true
			}
			if s.HistoryLookbackDays == 0 {
				s.HistoryLookbackDays = 90
				migrated = true
			}
		case 2:
			// version 2: bonus/subsidy rule
			if s.BonusMinOnSiteFraction == 0 {
				s.BonusMinOnSiteFraction = 0.3
				migrated = true
			}
			if s.BonusHighWindowFraction == 0 {
				s.BonusHighWindowFraction = 0.5
				migrated = true
			}
			if s.BonusReserveKWH == 0 {
				s.BonusReserveKWH = 1.0
				migrated = true
			}
		case 3:
			// version 3: candidate policy and model cold start
			if s.MaxSlotsPerDay == 0 {
				s.MaxSlotsPerDay = 3
				migrated = true
			}
			if s.MinTrainCycles == 0 {
				s.MinTrainCycles = 10
				migrated = true
			}
			if s.HabitWindowFraction == 0 {
				s.HabitWindowFraction = 0.6
				migrated = true
			}
			if s.DefaultCycleEnergyKWH == 0 {
				s.DefaultCycleEnergyKWH = 0.5
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
