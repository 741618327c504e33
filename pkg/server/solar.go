package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// SolarRes is the hourly production forecast over the horizon.
type SolarRes struct {
	Points   []types.SolarPoint `json:"points"`
	TotalKWH float64            `json:"total_kwh"`
}

func (s *Server) handleSolar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", "internal", http.StatusInternalServerError)
		return
	}

	days := settings.HorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 16 {
			writeJSONError(w, "invalid days parameter", "bad_request", http.StatusBadRequest)
			return
		}
	}

	forecast, err := s.solar.Forecast(ctx, time.Now(), days)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get solar forecast", slog.Any("error", err))
		writeJSONError(w, "solar forecast unavailable", "forecast_unavailable", http.StatusServiceUnavailable)
		return
	}

	var total float64
	for _, p := range forecast {
		total += p.EnergyKWH
	}

	writeJSON(w, SolarRes{Points: forecast, TotalKWH: total})
}
