// Package state persists per-operation progress so interrupted bulk runs
// can be resumed. Each operation is one JSON file in a local directory.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
)

// OperationType identifies the kind of bulk operation.
type OperationType string

// OperationType values.
const (
	OperationTypeAddUser            OperationType = "add_user"
	OperationTypeRemoveUser         OperationType = "remove_user"
	OperationTypeUpdateRole         OperationType = "update_role"
	OperationTypeUpdateFolderRights OperationType = "update_folder_rights"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

// OperationStatus values.
const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal reports whether the status forbids further mutation. Failed
// is not terminal: a failed operation may be resumed.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanCancel reports whether an operation in this status may be cancelled.
func (s OperationStatus) CanCancel() bool {
	return s == StatusPending || s == StatusInProgress
}

// OperationState is the persisted record of one bulk operation.
type OperationState struct {
	OperationID   uuid.UUID                     `json:"operation_id"`
	OperationType OperationType                 `json:"operation_type"`
	Status        OperationStatus               `json:"status"`
	Parameters    json.RawMessage               `json:"parameters"`
	ProjectIDs    []string                      `json:"project_ids"`
	Results       map[string]ProjectResultState `json:"results"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}

// ProjectResultState is the persisted outcome of a single project.
type ProjectResultState struct {
	Result      bulk.ItemResult `json:"result"`
	Attempts    int             `json:"attempts"`
	CompletedAt time.Time       `json:"completed_at"`
}

// CountResults tallies completed, failed and skipped results.
func (s *OperationState) CountResults() (completed, failed, skipped int) {
	for _, result := range s.Results {
		switch {
		case result.Result.IsSuccess():
			completed++
		case result.Result.IsFailed():
			failed++
		case result.Result.IsSkipped():
			skipped++
		}
	}
	return completed, failed, skipped
}

// FailedProjects returns the project ids whose recorded result is a
// failure, in declaration order. Resume re-queues these alongside the
// never-processed pending set.
func (s *OperationState) FailedProjects() []string {
	failed := make([]string, 0, len(s.Results))
	for _, projectID := range s.ProjectIDs {
		if result, ok := s.Results[projectID]; ok && result.Result.IsFailed() {
			failed = append(failed, projectID)
		}
	}
	return failed
}

// OperationSummary is the compact listing form of an operation.
type OperationSummary struct {
	OperationID   uuid.UUID       `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	Total         int             `json:"total"`
	Completed     int             `json:"completed"`
	Failed        int             `json:"failed"`
	Skipped       int             `json:"skipped"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Update mutates one aspect of a persisted operation.
type Update interface {
	applyTo(state *OperationState)
}

// ItemCompleted records (or overwrites) the outcome of one project.
type ItemCompleted struct {
	ProjectID string
	Result    bulk.ItemResult
	Attempts  int
}

func (u ItemCompleted) applyTo(state *OperationState) {
	state.Results[u.ProjectID] = ProjectResultState{
		Result:      u.Result,
		Attempts:    u.Attempts,
		CompletedAt: time.Now().UTC(),
	}
}

// StatusChanged replaces the operation status.
type StatusChanged struct {
	Status OperationStatus
}

func (u StatusChanged) applyTo(state *OperationState) {
	state.Status = u.Status
}

// OperationNotFoundError is returned when no record exists for an id.
type OperationNotFoundError struct {
	ID uuid.UUID
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("operation %s not found", e.ID)
}

// InvalidOperationError is an illegal lifecycle transition, such as
// cancelling a completed operation.
type InvalidOperationError struct {
	Message string
}

func (e *InvalidOperationError) Error() string {
	return "invalid operation: " + e.Message
}

// StateError is a persistence failure in the underlying store.
type StateError struct {
	Err error
}

func (e *StateError) Error() string {
	return "state error: " + e.Err.Error()
}

func (e *StateError) Unwrap() error {
	return e.Err
}
