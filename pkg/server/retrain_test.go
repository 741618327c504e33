package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/solarplanner/solarplanner/pkg/storage/storagemock"
	"github.com/solarplanner/solarplanner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetrain(t *testing.T) {
	db := &storagemock.MockDatabase{}
	expectSettings(db)
	s := newTestServer(db)

	// 12 cycles clears the default cold-start minimum of 10
	db.On("GetSampleHistory", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything, mock.Anything).Return(nil, nil)
	db.On("GetCycleHistory", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything, mock.Anything).Return(weeklyCycles(12), nil)
	db.On("SetModelArtifact", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything).Return(nil)
	db.On("InsertCommand", mock.Anything, types.HomeIDDefault, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/retrain", strings.NewReader(`{"devices":["washing_machine"]}`))
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res RetrainRes
	require.NoError(t, decodeJSON(rec, &res))
	assert.Equal(t, []types.DeviceID{"washing_machine"}, res.Trained)
	assert.Empty(t, res.Skipped)

	// the new model is live immediately
	_, ok := s.models.Get("washing_machine")
	assert.True(t, ok)

	db.AssertCalled(t, "SetModelArtifact", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything)
}

func TestRetrainInsufficientHistory(t *testing.T) {
	db := &storagemock.MockDatabase{}
	expectSettings(db)
	s := newTestServer(db)

	db.On("GetSampleHistory", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything, mock.Anything).Return(nil, nil)
	db.On("GetCycleHistory", mock.Anything, types.HomeIDDefault, types.DeviceID("washing_machine"), mock.Anything, mock.Anything).Return(weeklyCycles(4), nil)
	db.On("InsertCommand", mock.Anything, types.HomeIDDefault, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/retrain", strings.NewReader(`{"devices":["washing_machine"]}`))
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res RetrainRes
	require.NoError(t, decodeJSON(rec, &res))
	assert.Empty(t, res.Trained)
	assert.Equal(t, "insufficient history to train", res.Skipped["washing_machine"])

	_, ok := s.models.Get("washing_machine")
	assert.False(t, ok)
}

func TestRetrainUnrecognizedDevice(t *testing.T) {
	db := &storagemock.MockDatabase{}
	s := newTestServer(db)

	req := httptest.NewRequest(http.MethodPost, "/api/retrain", strings.NewReader(`{"devices":["toaster"]}`))
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unrecognized_device", errReason(t, rec))
}
