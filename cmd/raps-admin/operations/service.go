package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/audit"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/telemetry"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// Service wires the bulk operation drivers to the upstream clients, the
// state store and the audit log.
type Service struct {
	admin       AdminClient
	users       UsersClient
	permissions PermissionsClient
	store       *state.Store
	auditor     audit.Logger
	logger      zerolog.Logger
}

// CreateService creates the operations service.
func CreateService(
	admin AdminClient,
	users UsersClient,
	permissions PermissionsClient,
	store *state.Store,
	auditor audit.Logger,
	logger zerolog.Logger,
) (*Service, error) {
	if admin == nil {
		return nil, fmt.Errorf("admin client is required")
	}
	if users == nil {
		return nil, fmt.Errorf("users client is required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permissions client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if auditor == nil {
		auditor = audit.NewLogger(audit.NewMemoryStorage())
	}
	telemetry.Init()

	return &Service{
		admin:       admin,
		users:       users,
		permissions: permissions,
		store:       store,
		auditor:     auditor,
		logger:      logger,
	}, nil
}

// Store returns the underlying state store.
func (s *Service) Store() *state.Store {
	return s.store
}

// resolveSubject translates the subject email into a stable user id.
// Resolution failure aborts the whole operation before any state exists.
func (s *Service) resolveSubject(
	ctx context.Context,
	accountID, email string,
) (string, error) {
	user, err := s.admin.FindUserByEmail(ctx, accountID, email)
	if err != nil {
		return "", fmt.Errorf("resolving user %s: %w", email, err)
	}
	if user == nil {
		return "", &UserNotFoundError{Email: email}
	}
	return user.ID, nil
}

// runOperation is the shared run skeleton: expand targets, persist state,
// drive the executor, finalize.
func (s *Service) runOperation(
	ctx context.Context,
	operationType state.OperationType,
	parameters any,
	accountID, actor string,
	projectFilter *filter.ProjectFilter,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
	processor bulk.ProcessorFunc,
) (*bulk.OperationResult, error) {
	projects, err := s.admin.ListAllProjects(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if projectFilter == nil {
		projectFilter = &filter.ProjectFilter{}
	}
	targets := projectFilter.Apply(projects)

	if len(targets) == 0 {
		return &bulk.OperationResult{
			OperationID: uuid.New(),
			Details:     []bulk.ItemDetail{},
		}, nil
	}

	items := make([]bulk.ProcessItem, 0, len(targets))
	projectIDs := make([]string, 0, len(targets))
	for _, project := range targets {
		items = append(items, bulk.ProcessItem{
			ProjectID:   project.ID,
			ProjectName: project.Name,
		})
		projectIDs = append(projectIDs, project.ID)
	}

	// Preview runs never touch the state store.
	if config.DryRun {
		executor := bulk.CreateExecutor(config, nil)
		return executor.Run(ctx, uuid.New(), items, processor, onProgress)
	}

	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("encoding operation parameters: %w", err)
	}
	operationID, err := s.store.Create(ctx, operationType, raw, projectIDs)
	if err != nil {
		return nil, err
	}
	if err := s.store.Apply(ctx, operationID, state.StatusChanged{
		Status: state.StatusInProgress,
	}); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.ActionCreate, operationID, actor, map[string]any{
		"type":    string(operationType),
		"targets": len(items),
	})
	telemetry.RecordOperationStart(ctx, string(operationType), len(items))
	s.logger.Info().
		Str("operation_id", operationID.String()).
		Str("type", string(operationType)).
		Int("targets", len(items)).
		Msg("bulk operation started")

	executor := bulk.CreateExecutor(config, s.store)
	result, runErr := executor.Run(ctx, operationID, items, processor, onProgress)
	return s.finalize(ctx, operationType, operationID, actor, result, runErr)
}

// resumeOperation is the shared resume skeleton: re-queue unfinished and
// failed items, drive the executor, merge with prior outcomes, finalize.
func (s *Service) resumeOperation(
	ctx context.Context,
	record *state.OperationState,
	actor string,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
	processor bulk.ProcessorFunc,
) (*bulk.OperationResult, error) {
	workSet := append(s.store.PendingProjects(record), record.FailedProjects()...)

	if len(workSet) == 0 {
		return aggregateFromState(record), nil
	}

	if err := s.store.Apply(ctx, record.OperationID, state.StatusChanged{
		Status: state.StatusInProgress,
	}); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.ActionResume, record.OperationID, actor, map[string]any{
		"type":    string(record.OperationType),
		"pending": len(workSet),
	})
	s.logger.Info().
		Str("operation_id", record.OperationID.String()).
		Str("type", string(record.OperationType)).
		Int("pending", len(workSet)).
		Msg("bulk operation resumed")

	items := make([]bulk.ProcessItem, 0, len(workSet))
	for _, projectID := range workSet {
		items = append(items, bulk.ProcessItem{ProjectID: projectID})
	}

	executor := bulk.CreateExecutor(config, s.store)
	result, runErr := executor.Run(ctx, record.OperationID, items, processor, onProgress)
	merged := mergeWithPrior(record, workSet, result)
	return s.finalize(ctx, record.OperationType, record.OperationID, actor, merged, runErr)
}

// finalize persists the terminal status and reports the outcome.
func (s *Service) finalize(
	ctx context.Context,
	operationType state.OperationType,
	operationID uuid.UUID,
	actor string,
	result *bulk.OperationResult,
	runErr error,
) (*bulk.OperationResult, error) {
	background := context.WithoutCancel(ctx)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			if err := s.store.Cancel(background, operationID); err != nil {
				s.logger.Warn().Err(err).
					Str("operation_id", operationID.String()).
					Msg("persisting cancelled status failed")
			}
			s.audit(background, audit.ActionCancel, operationID, actor, nil)
			return result, runErr
		}
		// Late persistence failure: terminate the run as failed.
		if err := s.store.Complete(background, operationID, state.StatusFailed); err != nil {
			s.logger.Warn().Err(err).
				Str("operation_id", operationID.String()).
				Msg("persisting failed status failed")
		}
		return result, runErr
	}

	finalStatus := state.StatusCompleted
	if result.Failed > 0 {
		finalStatus = state.StatusFailed
	}
	if err := s.store.Complete(ctx, operationID, finalStatus); err != nil {
		return result, err
	}

	for _, detail := range result.Details {
		outcome := "completed"
		switch {
		case detail.Result.IsFailed():
			outcome = "failed"
		case detail.Result.IsSkipped():
			outcome = "skipped"
		}
		telemetry.RecordItemOutcome(ctx, string(operationType), outcome)
	}

	s.audit(ctx, audit.ActionUpdate, operationID, actor, map[string]any{
		"status":    string(finalStatus),
		"completed": result.Completed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
	s.logger.Info().
		Str("operation_id", operationID.String()).
		Str("status", string(finalStatus)).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("bulk operation finished")

	return result, nil
}

func (s *Service) audit(
	ctx context.Context,
	action audit.Action,
	operationID uuid.UUID,
	actor string,
	metadata map[string]any,
) {
	if err := s.auditor.Log(
		ctx, action, "bulk_operation", operationID.String(), actor, metadata,
	); err != nil {
		s.logger.Warn().Err(err).Msg("writing audit entry failed")
	}
}

// aggregateFromState rebuilds a result from persisted outcomes when
// nothing is left to process.
func aggregateFromState(record *state.OperationState) *bulk.OperationResult {
	completed, failed, skipped := record.CountResults()
	details := make([]bulk.ItemDetail, 0, len(record.Results))
	for _, projectID := range record.ProjectIDs {
		if entry, ok := record.Results[projectID]; ok {
			details = append(details, bulk.ItemDetail{
				ProjectID: projectID,
				Result:    entry.Result,
				Attempts:  entry.Attempts,
			})
		}
	}
	return &bulk.OperationResult{
		OperationID: record.OperationID,
		Total:       len(record.ProjectIDs),
		Completed:   completed,
		Failed:      failed,
		Skipped:     skipped,
		Details:     details,
	}
}

// mergeWithPrior folds outcomes persisted before the resume into the new
// run's result, covering every declared project exactly once.
func mergeWithPrior(
	record *state.OperationState,
	workSet []string,
	result *bulk.OperationResult,
) *bulk.OperationResult {
	reprocessed := make(map[string]struct{}, len(workSet))
	for _, projectID := range workSet {
		reprocessed[projectID] = struct{}{}
	}

	merged := *result
	merged.Total = len(record.ProjectIDs)

	for _, projectID := range record.ProjectIDs {
		if _, ok := reprocessed[projectID]; ok {
			continue
		}
		entry, ok := record.Results[projectID]
		if !ok {
			continue
		}
		merged.Details = append(merged.Details, bulk.ItemDetail{
			ProjectID: projectID,
			Result:    entry.Result,
			Attempts:  entry.Attempts,
		})
		switch {
		case entry.Result.IsSuccess():
			merged.Completed++
		case entry.Result.IsFailed():
			merged.Failed++
		case entry.Result.IsSkipped():
			merged.Skipped++
		}
	}
	return &merged
}
