package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/types"
)

var (
	// ErrModelNotFound is returned when a device has no trained model stored.
	ErrModelNotFound = errors.New("model artifact not found")
)

// Database defines the interface for persisting data and retrieving settings.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, homeID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, homeID string, settings types.Settings, version int) error

	// Consumption streams and detected cycles
	UpsertSamples(ctx context.Context, homeID string, device types.DeviceID, samples []types.ConsumptionSample) error
	GetSampleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.ConsumptionSample, error)
	UpsertCycles(ctx context.Context, homeID string, device types.DeviceID, cycles []types.Cycle, version int) error
	GetCycleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.Cycle, error)

	// Command log
	InsertCommand(ctx context.Context, homeID string, cmd types.CommandRecord) error
	GetCommandHistory(ctx context.Context, homeID string, start, end time.Time) ([]types.CommandRecord, error)

	// Trained model artifacts, stored as opaque blobs so the storage layer
	// stays decoupled from the model format.
	GetModelArtifact(ctx context.Context, homeID string, device types.DeviceID) ([]byte, error)
	SetModelArtifact(ctx context.Context, homeID string, device types.DeviceID, artifact []byte) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
