package operations

import (
	"context"
	"fmt"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// BulkUpdateRole changes a user's role in every project matching the
// filter. Non-members, members already holding the target role and, when
// FromRoleID is set, members holding a different current role are skipped.
func (s *Service) BulkUpdateRole(
	ctx context.Context,
	params UpdateRoleParams,
	projectFilter *filter.ProjectFilter,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	userID, err := s.resolveSubject(ctx, params.AccountID, params.UserEmail)
	if err != nil {
		return nil, err
	}

	persisted := updateRoleState{
		AccountID:  params.AccountID,
		UserEmail:  params.UserEmail,
		UserID:     userID,
		NewRoleID:  params.NewRoleID,
		FromRoleID: params.FromRoleID,
	}

	return s.runOperation(
		ctx,
		state.OperationTypeUpdateRole,
		persisted,
		params.AccountID,
		params.UserEmail,
		projectFilter,
		config,
		onProgress,
		s.updateRoleProcessor(persisted),
	)
}

// updateRoleProcessor builds the per-project closure: fetch the current
// membership, apply the from-role and already-has-role skips, then patch.
func (s *Service) updateRoleProcessor(params updateRoleState) bulk.ProcessorFunc {
	return func(ctx context.Context, projectID string) bulk.ItemResult {
		current, err := s.users.GetProjectUser(ctx, projectID, params.UserID)
		if err != nil {
			if isNotFoundText(err.Error()) {
				return bulk.Skipped("user_not_in_project")
			}
			return bulk.Failed(
				fmt.Sprintf("getting project user: %v", err),
				bulk.IsRetryableError(err.Error()),
			)
		}

		if params.FromRoleID != "" && current.RoleID != params.FromRoleID {
			return bulk.Skipped(fmt.Sprintf("role_mismatch: current=%s", current.RoleID))
		}
		if current.RoleID == params.NewRoleID {
			return bulk.Skipped("already_has_role")
		}

		newRole := params.NewRoleID
		request := acc.UpdateProjectUserRequest{RoleID: &newRole}
		if _, err := s.users.UpdateUser(ctx, projectID, params.UserID, request); err != nil {
			return bulk.Failed(err.Error(), bulk.IsRetryableError(err.Error()))
		}
		return bulk.Success()
	}
}
