package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarplanner/solarplanner/pkg/cycle"
	"github.com/solarplanner/solarplanner/pkg/device"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/pattern"
	"github.com/solarplanner/solarplanner/pkg/recommend"
	"github.com/solarplanner/solarplanner/pkg/storage"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// AdviseReq asks for recommendations for the listed devices. An empty list
// means every controllable device.
type AdviseReq struct {
	Devices []string `json:"devices"`
}

// AdviseRes mirrors what the presentation client consumes: the ranked
// recommendations plus the mined patterns and statistics that explain them.
// BonusThreshold is omitted entirely on days with no forecast production.
type AdviseRes struct {
	Recommendations []types.Recommendation                         `json:"recommendations"`
	Devices         []types.DeviceID                               `json:"devices"`
	PatternsPerDay  map[types.DeviceID]map[string]types.DayPattern `json:"patterns_per_day"`
	Statistics      map[types.DeviceID]types.DeviceStatistics      `json:"statistics"`
	ErrorMessages   map[types.DeviceID]string                      `json:"error_messages"`
	BonusThreshold  *float64                                       `json:"bonus_threshold,omitempty"`
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdviseReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", "bad_request", http.StatusBadRequest)
			return
		}
	}

	var devices []types.DeviceID
	var configs []device.Config
	if len(req.Devices) == 0 {
		for _, id := range s.devices.Controllable() {
			cfg, _ := s.devices.Config(id)
			devices = append(devices, id)
			configs = append(configs, cfg)
		}
	} else {
		for _, raw := range req.Devices {
			id, cfg, err := s.devices.Resolve(raw)
			if err != nil {
				writeJSONError(w, "unrecognized device: "+raw, "unrecognized_device", http.StatusUnprocessableEntity)
				return
			}
			devices = append(devices, id)
			configs = append(configs, cfg)
		}
	}

	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", "internal", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	forecast, err := s.solar.Forecast(ctx, now, settings.HorizonDays)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get solar forecast", slog.Any("error", err))
		writeJSONError(w, "solar forecast unavailable", "forecast_unavailable", http.StatusServiceUnavailable)
		return
	}

	scorer := recommend.NewScorer(settings, s.calendar, s.models)

	res := AdviseRes{
		Recommendations: []types.Recommendation{},
		Devices:         devices,
		PatternsPerDay:  map[types.DeviceID]map[string]types.DayPattern{},
		Statistics:      map[types.DeviceID]types.DeviceStatistics{},
		ErrorMessages:   map[types.DeviceID]string{},
	}

	advised := 0
	for i, id := range devices {
		cycles, err := s.deviceCycles(ctx, settings, id, configs[i])
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load device history", slog.String("device", string(id)), slog.Any("error", err))
			res.ErrorMessages[id] = "failed to load history"
			continue
		}

		set, stats, err := pattern.Mine(ctx, id, cycles, settings.HabitWindowFraction)
		if err != nil {
			if errors.Is(err, pattern.ErrNoHistory) {
				res.ErrorMessages[id] = "no usage history"
				continue
			}
			log.Ctx(ctx).ErrorContext(ctx, "failed to mine patterns", slog.String("device", string(id)), slog.Any("error", err))
			res.ErrorMessages[id] = "failed to mine patterns"
			continue
		}

		s.loadModel(ctx, id)

		res.PatternsPerDay[id] = set.Days()
		res.Statistics[id] = stats
		res.Recommendations = append(res.Recommendations, scorer.Recommend(ctx, id, set, stats, forecast, now)...)
		advised++
	}

	if advised == 0 && len(devices) > 0 {
		writeJSONError(w, "no usage history for requested devices", "no_history", http.StatusNotFound)
		return
	}

	if threshold, ok := recommend.BonusThreshold(forecast, s.permanentBaseline(ctx), settings); ok {
		res.BonusThreshold = &threshold
	}

	if err := s.storage.InsertCommand(ctx, s.homeID, types.CommandRecord{
		Timestamp: now,
		Command:   "advise",
		Devices:   devices,
	}); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record command", slog.Any("error", err))
	}

	writeJSON(w, res)
}

// deviceCycles returns the device's cycles over the history lookback. Raw
// samples win over previously stored cycles so threshold changes take effect
// immediately; freshly detected cycles are persisted best effort.
func (s *Server) deviceCycles(ctx context.Context, settings types.Settings, id types.DeviceID, cfg device.Config) ([]types.Cycle, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -settings.HistoryLookbackDays)

	samples, err := s.storage.GetSampleHistory(ctx, s.homeID, id, start, end)
	if err != nil {
		return nil, err
	}
	if len(samples) > 0 {
		res := cycle.Detect(ctx, id, samples, cfg)
		if len(res.Cycles) > 0 {
			if err := s.storage.UpsertCycles(ctx, s.homeID, id, res.Cycles, types.CurrentCycleHistoryVersion); err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to persist detected cycles", slog.String("device", string(id)), slog.Any("error", err))
			}
		}
		return res.Cycles, nil
	}

	return s.storage.GetCycleHistory(ctx, s.homeID, id, start, end)
}

// loadModel lazily pulls the device's persisted trained model into the
// in-memory store. Missing or unreadable artifacts leave the linear fallback
// in place.
func (s *Server) loadModel(ctx context.Context, id types.DeviceID) {
	if _, ok := s.models.Get(id); ok {
		return
	}
	blob, err := s.storage.GetModelArtifact(ctx, s.homeID, id)
	if err != nil {
		if !errors.Is(err, storage.ErrModelNotFound) {
			log.Ctx(ctx).WarnContext(ctx, "failed to load model artifact", slog.String("device", string(id)), slog.Any("error", err))
		}
		return
	}
	model, err := recommend.UnmarshalEnsemble(blob)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode model artifact", slog.String("device", string(id)), slog.Any("error", err))
		return
	}
	s.models.Set(id, model)
}

// permanentBaseline estimates the home's always-on draw in kWh per day from
// the last week of the permanent devices' samples.
func (s *Server) permanentBaseline(ctx context.Context) float64 {
	const days = 7
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	var baseline float64
	for _, id := range s.devices.Permanent() {
		samples, err := s.storage.GetSampleHistory(ctx, s.homeID, id, start, end)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to load baseline samples", slog.String("device", string(id)), slog.Any("error", err))
			continue
		}
		var total float64
		for _, sm := range samples {
			total += sm.EnergyKWH
		}
		baseline += total / days
	}
	return baseline
}
