package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
)

// Store persists operation state, one JSON file per operation, named by
// operation id. The store is single-writer per operation: the same
// operation must not be driven by two processes concurrently.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// CreateStore creates a store rooted at the platform's user data location.
func CreateStore(logger zerolog.Logger) (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, &StateError{Err: fmt.Errorf("determining user data directory: %w", err)}
	}
	return CreateStoreWithDir(filepath.Join(base, "raps", "operations"), logger)
}

// CreateStoreWithDir creates a store rooted at an explicit directory.
func CreateStoreWithDir(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StateError{Err: fmt.Errorf("creating state directory: %w", err)}
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) operationPath(operationID uuid.UUID) string {
	return filepath.Join(s.dir, operationID.String()+".json")
}

// lockFor returns the per-operation mutex, creating it on first use.
// Updates to different operations never contend.
func (s *Store) lockFor(operationID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[operationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[operationID] = lock
	}
	return lock
}

// Create allocates a fresh operation id and writes a pending record with
// no results.
func (s *Store) Create(
	ctx context.Context,
	operationType OperationType,
	parameters json.RawMessage,
	projectIDs []string,
) (uuid.UUID, error) {
	operationID := uuid.New()
	now := time.Now().UTC()

	record := &OperationState{
		OperationID:   operationID,
		OperationType: operationType,
		Status:        StatusPending,
		Parameters:    parameters,
		ProjectIDs:    projectIDs,
		Results:       make(map[string]ProjectResultState),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.save(record); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug().
		Str("operation_id", operationID.String()).
		Str("type", string(operationType)).
		Int("targets", len(projectIDs)).
		Msg("operation state created")

	return operationID, nil
}

// Load reads an operation record. A missing record surfaces as
// OperationNotFoundError; a corrupt one fails loudly.
func (s *Store) Load(ctx context.Context, operationID uuid.UUID) (*OperationState, error) {
	path := s.operationPath(operationID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &OperationNotFoundError{ID: operationID}
		}
		return nil, &StateError{Err: fmt.Errorf("reading operation state: %w", err)}
	}

	var record OperationState
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &StateError{Err: fmt.Errorf("parsing operation state: %w", err)}
	}
	if record.Results == nil {
		record.Results = make(map[string]ProjectResultState)
	}
	return &record, nil
}

// Apply performs one update as a read-modify-write, serialized per
// operation id. Records in a terminal status are immutable.
func (s *Store) Apply(ctx context.Context, operationID uuid.UUID, update Update) error {
	lock := s.lockFor(operationID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(ctx, operationID)
	if err != nil {
		return err
	}
	if record.Status.IsTerminal() {
		return &InvalidOperationError{
			Message: fmt.Sprintf("operation %s is %s", operationID, record.Status),
		}
	}

	update.applyTo(record)
	record.UpdatedAt = time.Now().UTC()
	return s.save(record)
}

// Complete flips the operation to a terminal (or resumable failed) status.
func (s *Store) Complete(
	ctx context.Context,
	operationID uuid.UUID,
	status OperationStatus,
) error {
	return s.Apply(ctx, operationID, StatusChanged{Status: status})
}

// RecordItem persists one finalized item outcome. It implements
// bulk.Recorder.
func (s *Store) RecordItem(
	ctx context.Context,
	operationID uuid.UUID,
	detail bulk.ItemDetail,
) error {
	return s.Apply(ctx, operationID, ItemCompleted{
		ProjectID: detail.ProjectID,
		Result:    detail.Result,
		Attempts:  detail.Attempts,
	})
}

// List enumerates every record in the directory, newest update first.
// Malformed files are skipped so newer layouts do not break older readers.
func (s *Store) List(
	ctx context.Context,
	statusFilter *OperationStatus,
) ([]OperationSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StateError{Err: fmt.Errorf("reading state directory: %w", err)}
	}

	summaries := make([]OperationSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var record OperationState
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn().Str("file", entry.Name()).Msg("skipping malformed state file")
			continue
		}
		if statusFilter != nil && record.Status != *statusFilter {
			continue
		}

		completed, failed, skipped := record.CountResults()
		summaries = append(summaries, OperationSummary{
			OperationID:   record.OperationID,
			OperationType: record.OperationType,
			Status:        record.Status,
			Total:         len(record.ProjectIDs),
			Completed:     completed,
			Failed:        failed,
			Skipped:       skipped,
			CreatedAt:     record.CreatedAt,
			UpdatedAt:     record.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Resumable returns the most recently updated in-progress operation, if
// any.
func (s *Store) Resumable(ctx context.Context) (uuid.UUID, bool, error) {
	status := StatusInProgress
	summaries, err := s.List(ctx, &status)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(summaries) == 0 {
		return uuid.Nil, false, nil
	}
	return summaries[0].OperationID, true, nil
}

// PendingProjects returns the project ids that have no recorded result.
func (s *Store) PendingProjects(record *OperationState) []string {
	pending := make([]string, 0, len(record.ProjectIDs))
	for _, projectID := range record.ProjectIDs {
		if _, done := record.Results[projectID]; !done {
			pending = append(pending, projectID)
		}
	}
	return pending
}

// Cancel marks a pending or in-progress operation as cancelled.
func (s *Store) Cancel(ctx context.Context, operationID uuid.UUID) error {
	lock := s.lockFor(operationID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(ctx, operationID)
	if err != nil {
		return err
	}
	if !record.Status.CanCancel() {
		return &InvalidOperationError{
			Message: fmt.Sprintf("cannot cancel operation with status %s", record.Status),
		}
	}

	record.Status = StatusCancelled
	record.UpdatedAt = time.Now().UTC()
	return s.save(record)
}

// Delete removes an operation record. Deleting a missing record is a
// no-op.
func (s *Store) Delete(ctx context.Context, operationID uuid.UUID) error {
	err := os.Remove(s.operationPath(operationID))
	if err != nil && !os.IsNotExist(err) {
		return &StateError{Err: fmt.Errorf("deleting operation state: %w", err)}
	}
	return nil
}

// save serializes the full record and atomically replaces the file.
func (s *Store) save(record *OperationState) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &StateError{Err: fmt.Errorf("serializing operation state: %w", err)}
	}

	path := s.operationPath(record.OperationID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &StateError{Err: fmt.Errorf("writing operation state: %w", err)}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &StateError{Err: fmt.Errorf("replacing operation state: %w", err)}
	}
	return nil
}
