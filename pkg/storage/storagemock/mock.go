package storagemock

import (
	"context"
	"time"

	"github.com/solarplanner/solarplanner/pkg/storage"
	"github.com/solarplanner/solarplanner/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context, homeID string) (types.Settings, int, error) {
	args := m.Called(ctx, homeID)
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, homeID string, settings types.Settings, version int) error {
	args := m.Called(ctx, homeID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) UpsertSamples(ctx context.Context, homeID string, device types.DeviceID, samples []types.ConsumptionSample) error {
	args := m.Called(ctx, homeID, device, samples)
	return args.Error(0)
}

func (m *MockDatabase) GetSampleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.ConsumptionSample, error) {
	args := m.Called(ctx, homeID, device, start, end)
	if samples := args.Get(0); samples != nil {
		return samples.([]types.ConsumptionSample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) UpsertCycles(ctx context.Context, homeID string, device types.DeviceID, cycles []types.Cycle, version int) error {
	args := m.Called(ctx, homeID, device, cycles, version)
	return args.Error(0)
}

func (m *MockDatabase) GetCycleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.Cycle, error) {
	args := m.Called(ctx, homeID, device, start, end)
	if cycles := args.Get(0); cycles != nil {
		return cycles.([]types.Cycle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) InsertCommand(ctx context.Context, homeID string, cmd types.CommandRecord) error {
	args := m.Called(ctx, homeID, cmd)
	return args.Error(0)
}

func (m *MockDatabase) GetCommandHistory(ctx context.Context, homeID string, start, end time.Time) ([]types.CommandRecord, error) {
	args := m.Called(ctx, homeID, start, end)
	if cmds := args.Get(0); cmds != nil {
		return cmds.([]types.CommandRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetModelArtifact(ctx context.Context, homeID string, device types.DeviceID) ([]byte, error) {
	args := m.Called(ctx, homeID, device)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) SetModelArtifact(ctx context.Context, homeID string, device types.DeviceID, artifact []byte) error {
	args := m.Called(ctx, homeID, device, artifact)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
