package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/pattern"
	"github.com/solarplanner/solarplanner/pkg/recommend"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// RetrainReq asks for model retraining. An empty device list retrains every
// controllable device.
type RetrainReq struct {
	Devices []string `json:"devices"`
}

// RetrainRes reports which devices got a new model and why the rest were
// skipped.
type RetrainRes struct {
	Trained []types.DeviceID          `json:"trained"`
	Skipped map[types.DeviceID]string `json:"skipped"`
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RetrainReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", "bad_request", http.StatusBadRequest)
			return
		}
	}

	var devices []types.DeviceID
	if len(req.Devices) == 0 {
		devices = s.devices.Controllable()
	} else {
		for _, raw := range req.Devices {
			id, _, err := s.devices.Resolve(raw)
			if err != nil {
				writeJSONError(w, "unrecognized device: "+raw, "unrecognized_device", http.StatusUnprocessableEntity)
				return
			}
			devices = append(devices, id)
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

	res := RetrainRes{
		Trained: []types.DeviceID{},
		Skipped: map[types.DeviceID]string{},
	}

	for _, id := range devices {
		cfg, _ := s.devices.Config(id)
		cycles, err := s.deviceCycles(ctx, settings, id, cfg)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load device history", slog.String("device", string(id)), slog.Any("error", err))
			res.Skipped[id] = "failed to load history"
			continue
		}

		set, stats, err := pattern.Mine(ctx, id, cycles, settings.HabitWindowFraction)
		if err != nil {
			res.Skipped[id] = "no usage history"
			continue
		}

		estEnergy := stats.AvgEnergyKWH
		if estEnergy <= 0 {
			estEnergy = settings.DefaultCycleEnergyKWH
		}
		surplus := recommend.SurplusByHour(forecast, estEnergy)

		model, err := recommend.Train(id, set, surplus, settings.MinTrainCycles, recommend.DefaultTrainConfig())
		if err != nil {
			if errors.Is(err, recommend.ErrInsufficientHistory) {
				res.Skipped[id] = "insufficient history to train"
				continue
			}
			log.Ctx(ctx).ErrorContext(ctx, "failed to train model", slog.String("device", string(id)), slog.Any("error", err))
			res.Skipped[id] = "training failed"
			continue
		}

		blob, err := model.Marshal()
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to marshal model", slog.String("device", string(id)), slog.Any("error", err))
			res.Skipped[id] = "training failed"
			continue
		}
		if err := s.storage.SetModelArtifact(ctx, s.homeID, id, blob); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist model", slog.String("device", string(id)), slog.Any("error", err))
			res.Skipped[id] = "failed to persist model"
			continue
		}

		// swap in only after the artifact is durable
		s.models.Set(id, model)
		res.Trained = append(res.Trained, id)

		log.Ctx(ctx).InfoContext(
			ctx,
			"retrained model",
			slog.String("device", string(id)),
			slog.Int("cycles", set.TotalCycles()),
		)
	}

	if err := s.storage.InsertCommand(ctx, s.homeID, types.CommandRecord{
		Timestamp: now,
		Command:   "retrain",
		Devices:   devices,
	}); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record command", slog.Any("error", err))
	}

	writeJSON(w, res)
}
