package operations

import (
	"context"
	"fmt"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// BulkRemoveUser removes a user from every project matching the filter.
// Projects where the user is not a member are skipped.
func (s *Service) BulkRemoveUser(
	ctx context.Context,
	params RemoveUserParams,
	projectFilter *filter.ProjectFilter,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	userID, err := s.resolveSubject(ctx, params.AccountID, params.UserEmail)
	if err != nil {
		return nil, err
	}

	persisted := removeUserState{
		AccountID: params.AccountID,
		UserEmail: params.UserEmail,
		UserID:    userID,
	}

	return s.runOperation(
		ctx,
		state.OperationTypeRemoveUser,
		persisted,
		params.AccountID,
		params.UserEmail,
		projectFilter,
		config,
		onProgress,
		s.removeUserProcessor(persisted),
	)
}

// removeUserProcessor builds the per-project closure: pre-check
// membership, then remove. A 404 on the removal itself is treated as a
// skip since the user may have been removed between check and delete.
func (s *Service) removeUserProcessor(params removeUserState) bulk.ProcessorFunc {
	return func(ctx context.Context, projectID string) bulk.ItemResult {
		exists, err := s.users.UserExists(ctx, projectID, params.UserID)
		if err != nil {
			return bulk.Failed(
				fmt.Sprintf("checking user membership: %v", err),
				bulk.IsRetryableError(err.Error()),
			)
		}
		if !exists {
			return bulk.Skipped("user_not_in_project")
		}

		if err := s.users.RemoveUser(ctx, projectID, params.UserID); err != nil {
			if isNotFoundText(err.Error()) {
				return bulk.Skipped("user_not_in_project")
			}
			return bulk.Failed(err.Error(), bulk.IsRetryableError(err.Error()))
		}
		return bulk.Success()
	}
}
