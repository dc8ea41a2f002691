package operations

import (
	"context"
	"fmt"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// BulkAddUser adds a user to every project matching the filter. Projects
// where the user is already a member are skipped.
func (s *Service) BulkAddUser(
	ctx context.Context,
	params AddUserParams,
	projectFilter *filter.ProjectFilter,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	userID, err := s.resolveSubject(ctx, params.AccountID, params.UserEmail)
	if err != nil {
		return nil, err
	}

	persisted := addUserState{
		AccountID: params.AccountID,
		UserEmail: params.UserEmail,
		UserID:    userID,
		RoleID:    params.RoleID,
		Products:  params.Products,
	}

	return s.runOperation(
		ctx,
		state.OperationTypeAddUser,
		persisted,
		params.AccountID,
		params.UserEmail,
		projectFilter,
		config,
		onProgress,
		s.addUserProcessor(persisted),
	)
}

// addUserProcessor builds the per-project closure: pre-check membership,
// then add.
func (s *Service) addUserProcessor(params addUserState) bulk.ProcessorFunc {
	return func(ctx context.Context, projectID string) bulk.ItemResult {
		exists, err := s.users.UserExists(ctx, projectID, params.UserID)
		if err != nil {
			return bulk.Failed(
				fmt.Sprintf("checking user membership: %v", err),
				true,
			)
		}
		if exists {
			return bulk.Skipped("already_exists")
		}

		request := acc.AddProjectUserRequest{
			UserID:   params.UserID,
			RoleID:   params.RoleID,
			Products: params.Products,
		}
		if _, err := s.users.AddUser(ctx, projectID, request); err != nil {
			return bulk.Failed(err.Error(), bulk.IsRetryableError(err.Error()))
		}
		return bulk.Success()
	}
}
