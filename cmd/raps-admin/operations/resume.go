package operations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// Resume continues an interrupted operation. Only unfinished and
// previously failed items are re-processed, with the parameters that were
// resolved for the original run; successful and skipped outcomes are
// preserved verbatim.
func (s *Service) Resume(
	ctx context.Context,
	operationID uuid.UUID,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	record, err := s.store.Load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if record.Status.IsTerminal() {
		return nil, &state.InvalidOperationError{
			Message: fmt.Sprintf("cannot resume operation with status %s", record.Status),
		}
	}

	processor, actor, err := s.processorFromRecord(record)
	if err != nil {
		return nil, err
	}
	return s.resumeOperation(ctx, record, actor, config, onProgress, processor)
}

// ResumeLatest resumes the most recently updated in-progress operation.
func (s *Service) ResumeLatest(
	ctx context.Context,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	operationID, found, err := s.store.Resumable(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &state.InvalidOperationError{Message: "no resumable operation found"}
	}
	return s.Resume(ctx, operationID, config, onProgress)
}

// processorFromRecord rebuilds the per-driver processor closure from
// persisted parameters.
func (s *Service) processorFromRecord(
	record *state.OperationState,
) (bulk.ProcessorFunc, string, error) {
	switch record.OperationType {
	case state.OperationTypeAddUser:
		var params addUserState
		if err := decodeParameters(record, &params); err != nil {
			return nil, "", err
		}
		if err := params.validate(); err != nil {
			return nil, "", err
		}
		return s.addUserProcessor(params), params.UserEmail, nil

	case state.OperationTypeRemoveUser:
		var params removeUserState
		if err := decodeParameters(record, &params); err != nil {
			return nil, "", err
		}
		if err := params.validate(); err != nil {
			return nil, "", err
		}
		return s.removeUserProcessor(params), params.UserEmail, nil

	case state.OperationTypeUpdateRole:
		var params updateRoleState
		if err := decodeParameters(record, &params); err != nil {
			return nil, "", err
		}
		if err := params.validate(); err != nil {
			return nil, "", err
		}
		return s.updateRoleProcessor(params), params.UserEmail, nil

	case state.OperationTypeUpdateFolderRights:
		var params folderRightsState
		if err := decodeParameters(record, &params); err != nil {
			return nil, "", err
		}
		if err := params.validate(); err != nil {
			return nil, "", err
		}
		level, err := ParsePermissionLevel(params.PermissionLevel)
		if err != nil {
			return nil, "", fmt.Errorf("restoring operation parameters: %w", err)
		}
		folder, err := ParseFolderType(params.FolderType)
		if err != nil {
			return nil, "", fmt.Errorf("restoring operation parameters: %w", err)
		}
		return s.folderRightsProcessor(params, folder, level.Actions()), params.UserEmail, nil
	}

	return nil, "", &state.InvalidOperationError{
		Message: fmt.Sprintf("unknown operation type %s", record.OperationType),
	}
}

// decodeParameters unmarshals persisted parameters.
func decodeParameters(record *state.OperationState, out any) error {
	if err := json.Unmarshal(record.Parameters, out); err != nil {
		return fmt.Errorf("decoding operation parameters: %w", err)
	}
	return nil
}

func (p addUserState) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("missing user_id in operation parameters")
	}
	return nil
}

func (p removeUserState) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("missing user_id in operation parameters")
	}
	return nil
}

func (p updateRoleState) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("missing user_id in operation parameters")
	}
	if p.NewRoleID == "" {
		return fmt.Errorf("missing new_role_id in operation parameters")
	}
	return nil
}

func (p folderRightsState) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("missing user_id in operation parameters")
	}
	if p.PermissionLevel == "" {
		return fmt.Errorf("missing permission_level in operation parameters")
	}
	if p.FolderType == "" {
		return fmt.Errorf("missing folder_type in operation parameters")
	}
	return nil
}
