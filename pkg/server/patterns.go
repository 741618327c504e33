package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/pattern"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// PatternsRes is the mined habit view for a single device.
type PatternsRes struct {
	Device         types.DeviceID              `json:"device"`
	PatternsPerDay map[string]types.DayPattern `json:"patterns_per_day"`
	Statistics     types.DeviceStatistics      `json:"statistics"`
	HabitWindows   map[string]map[string]int   `json:"habit_windows"`
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := r.URL.Query().Get("device")
	if raw == "" {
		writeJSONError(w, "device parameter required", "bad_request", http.StatusBadRequest)
		return
	}
	id, cfg, err := s.devices.Resolve(raw)
	if err != nil {
		writeJSONError(w, "unrecognized device: "+raw, "unrecognized_device", http.StatusUnprocessableEntity)
		return
	}

	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", "internal", http.StatusInternalServerError)
		return
	}

	cycles, err := s.deviceCycles(ctx, settings, id, cfg)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load device history", slog.String("device", string(id)), slog.Any("error", err))
		writeJSONError(w, "failed to load history", "internal", http.StatusInternalServerError)
		return
	}

	set, stats, err := pattern.Mine(ctx, id, cycles, settings.HabitWindowFraction)
	if err != nil {
		if errors.Is(err, pattern.ErrNoHistory) {
			writeJSONError(w, "no usage history for device", "no_history", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to mine patterns", slog.String("device", string(id)), slog.Any("error", err))
		writeJSONError(w, "failed to mine patterns", "internal", http.StatusInternalServerError)
		return
	}

	windows := map[string]map[string]int{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if win, ok := set.HabitWindow(wd); ok {
			windows[types.WeekdayLabel(wd)] = map[string]int{
				"start":      win.Start,
				"end":        win.End,
				"peak_count": win.PeakCount,
			}
		}
	}

	writeJSON(w, PatternsRes{
		Device:         id,
		PatternsPerDay: set.Days(),
		Statistics:     stats,
		HabitWindows:   windows,
	})
}
