package server

import (
	"log/slog"
	"net/http"

	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), "bad_request", http.StatusBadRequest)
		return
	}

	cmds, err := s.storage.GetCommandHistory(ctx, s.homeID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get commands", slog.Any("error", err))
		writeJSONError(w, "failed to get commands", "internal", http.StatusInternalServerError)
		return
	}

	// Always return an array, even if empty
	if cmds == nil {
		cmds = []types.CommandRecord{}
	}

	writeJSON(w, cmds)
}

// DevicesRes lists the devices this instance knows about.
type DevicesRes struct {
	Controllable []types.DeviceID `json:"controllable"`
	Permanent    []types.DeviceID `json:"permanent"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, DevicesRes{
		Controllable: s.devices.Controllable(),
		Permanent:    s.devices.Permanent(),
	})
}
