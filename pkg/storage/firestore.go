package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. It persists settings, consumption samples, detected cycles,
// commands, and model artifacts under per-home collections.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) homeCollection(homeID, name string) (*firestore.CollectionRef, error) {
	if homeID == "" {
		return nil, fmt.Errorf("homeID cannot be empty")
	}
	return f.client.Collection("homes").Doc(homeID).Collection(name), nil
}

func (f *FirestoreProvider) deviceCollection(homeID string, device types.DeviceID, name string) (*firestore.CollectionRef, error) {
	if homeID == "" {
		return nil, fmt.Errorf("homeID cannot be empty")
	}
	if device == "" {
		return nil, fmt.Errorf("device cannot be empty")
	}
	return f.client.Collection("homes").Doc(homeID).Collection("devices").Doc(string(device)).Collection(name), nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context, homeID string) (types.Settings, int, error) {
	coll, err := f.homeCollection(homeID, "config")
	if err != nil {
		return types.Settings{}, 0, err
	}
	doc, err := coll.Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Return default settings if not found
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "settings doc missing json", slog.String("homeID", homeID))
		return types.Settings{}, 0, fmt.Errorf("settings document missing 'json' field: %w", err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "settings doc json not string", slog.String("homeID", homeID))
		return types.Settings{}, 0, fmt.Errorf("settings 'json' field is not a string")
	}

	var s types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.String("homeID", homeID), slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
// It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, homeID string, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	coll, err := f.homeCollection(homeID, "config")
	if err != nil {
		return err
	}
	_, err = coll.Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// UpsertSamples adds or updates consumption samples in the device's
// "samples" collection. The document ID is the RFC3339 timestamp for
// efficient range queries.
func (f *FirestoreProvider) UpsertSamples(ctx context.Context, homeID string, device types.DeviceID, samples []types.ConsumptionSample) error {
	coll, err := f.deviceCollection(homeID, device, "samples")
	if err != nil {
		return err
	}

	for _, s := range samples {
		if s.Timestamp.IsZero() {
			return fmt.Errorf("sample missing timestamp")
		}
		jsonBytes, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		docID := s.Timestamp.UTC().Format(time.RFC3339)
		_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": s.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert sample: %w", err)
		}
	}
	return nil
}

// GetSampleHistory retrieves consumption samples within the specified time range.
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetSampleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.ConsumptionSample, error) {
	coll, err := f.deviceCollection(homeID, device, "samples")
	if err != nil {
		return nil, err
	}

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var samples []types.ConsumptionSample
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating samples: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "sample doc missing json", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("sample document %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "sample doc json not string", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID))
			return nil, fmt.Errorf("sample document %s 'json' field is not string", doc.Ref.ID)
		}

		var s types.ConsumptionSample
		if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal sample", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal sample (id=%s): %w", doc.Ref.ID, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// UpsertCycles adds or updates detected cycles in the device's "cycles"
// collection. The document ID is the RFC3339 timestamp of the cycle start.
func (f *FirestoreProvider) UpsertCycles(ctx context.Context, homeID string, device types.DeviceID, cycles []types.Cycle, version int) error {
	coll, err := f.deviceCollection(homeID, device, "cycles")
	if err != nil {
		return err
	}

	for _, c := range cycles {
		if c.Start.IsZero() {
			return fmt.Errorf("cycle missing start time")
		}
		jsonBytes, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal cycle: %w", err)
		}
		docID := c.Start.UTC().Format(time.RFC3339)
		_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": c.Start,
			"version":   version,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert cycle: %w", err)
		}
	}
	return nil
}

// GetCycleHistory retrieves detected cycles within the specified time range.
func (f *FirestoreProvider) GetCycleHistory(ctx context.Context, homeID string, device types.DeviceID, start, end time.Time) ([]types.Cycle, error) {
	coll, err := f.deviceCollection(homeID, device, "cycles")
	if err != nil {
		return nil, err
	}

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var cycles []types.Cycle
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating cycles: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "cycle doc missing json", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("cycle document %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "cycle doc json not string", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID))
			return nil, fmt.Errorf("cycle document %s 'json' field is not string", doc.Ref.ID)
		}

		var c types.Cycle
		if err := json.Unmarshal([]byte(jsonStr), &c); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal cycle", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal cycle (id=%s): %w", doc.Ref.ID, err)
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}

// InsertCommand adds a new command record to the "commands" collection as a
// JSON blob. The document ID is the RFC3339 timestamp for efficient range
// queries.
func (f *FirestoreProvider) InsertCommand(ctx context.Context, homeID string, cmd types.CommandRecord) error {
	jsonBytes, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	coll, err := f.homeCollection(homeID, "commands")
	if err != nil {
		return err
	}
	docID := cmd.Timestamp.UTC().Format(time.RFC3339Nano)
	_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": cmd.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

// GetCommandHistory retrieves command records within the specified time range.
func (f *FirestoreProvider) GetCommandHistory(ctx context.Context, homeID string, start, end time.Time) ([]types.CommandRecord, error) {
	coll, err := f.homeCollection(homeID, "commands")
	if err != nil {
		return nil, err
	}

	startDocID := start.UTC().Format(time.RFC3339Nano)
	endDocID := end.UTC().Format(time.RFC3339Nano)

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var cmds []types.CommandRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating commands: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "command doc missing json", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("command document %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "command doc json not string", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID))
			return nil, fmt.Errorf("command document %s 'json' field is not string", doc.Ref.ID)
		}

		var c types.CommandRecord
		if err := json.Unmarshal([]byte(jsonStr), &c); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal command", slog.String("docID", doc.Ref.ID), slog.String("homeID", homeID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal command (id=%s): %w", doc.Ref.ID, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// GetModelArtifact retrieves the device's trained model blob from the
// "models" collection.
func (f *FirestoreProvider) GetModelArtifact(ctx context.Context, homeID string, device types.DeviceID) ([]byte, error) {
	coll, err := f.homeCollection(homeID, "models")
	if err != nil {
		return nil, err
	}
	doc, err := coll.Doc(string(device)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, device)
		}
		return nil, fmt.Errorf("failed to fetch model doc for %s: %w", device, err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "model doc missing json", slog.String("device", string(device)), slog.String("homeID", homeID))
		return nil, fmt.Errorf("model document %s missing 'json' field: %w", device, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "model doc json not string", slog.String("device", string(device)), slog.String("homeID", homeID))
		return nil, fmt.Errorf("model document %s 'json' field is not string", device)
	}
	return []byte(jsonStr), nil
}

// SetModelArtifact saves the device's trained model blob to the "models"
// collection.
func (f *FirestoreProvider) SetModelArtifact(ctx context.Context, homeID string, device types.DeviceID, artifact []byte) error {
	coll, err := f.homeCollection(homeID, "models")
	if err != nil {
		return err
	}
	_, err = coll.Doc(string(device)).Set(ctx, map[string]interface{}{
		"json":      string(artifact),
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save model for %s: %w", device, err)
	}
	return nil
}

var _ Database = (*FirestoreProvider)(nil)
