package operations

import (
	"context"
	"fmt"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// BulkUpdateFolderRights grants a user a permission level on a folder in
// every project matching the filter. Projects without the requested root
// folder are skipped.
func (s *Service) BulkUpdateFolderRights(
	ctx context.Context,
	params FolderRightsParams,
	projectFilter *filter.ProjectFilter,
	config bulk.Config,
	onProgress bulk.ProgressFunc,
) (*bulk.OperationResult, error) {
	userID, err := s.resolveSubject(ctx, params.AccountID, params.UserEmail)
	if err != nil {
		return nil, err
	}

	persisted := folderRightsState{
		AccountID:       params.AccountID,
		UserEmail:       params.UserEmail,
		UserID:          userID,
		PermissionLevel: string(params.Level),
		FolderType:      params.Folder.String(),
	}

	// The action set is translated once, before the executor loop.
	processor := s.folderRightsProcessor(persisted, params.Folder, params.Level.Actions())

	return s.runOperation(
		ctx,
		state.OperationTypeUpdateFolderRights,
		persisted,
		params.AccountID,
		params.UserEmail,
		projectFilter,
		config,
		onProgress,
		processor,
	)
}

// folderRightsProcessor builds the per-project closure: resolve the target
// folder, then batch-apply the action set for the subject.
func (s *Service) folderRightsProcessor(
	params folderRightsState,
	folder FolderType,
	actions []string,
) bulk.ProcessorFunc {
	return func(ctx context.Context, projectID string) bulk.ItemResult {
		var folderID string
		switch {
		case folder.IsProjectFiles():
			id, err := s.permissions.GetProjectFilesFolderID(ctx, projectID)
			if err != nil {
				if isNotFoundText(err.Error()) {
					return bulk.Skipped("project_files_folder_not_found")
				}
				return bulk.Failed(
					fmt.Sprintf("resolving Project Files folder: %v", err),
					bulk.IsRetryableError(err.Error()),
				)
			}
			folderID = id
		case folder.IsPlans():
			id, err := s.permissions.GetPlansFolderID(ctx, projectID)
			if err != nil {
				if isNotFoundText(err.Error()) {
					return bulk.Skipped("plans_folder_not_found")
				}
				return bulk.Failed(
					fmt.Sprintf("resolving Plans folder: %v", err),
					bulk.IsRetryableError(err.Error()),
				)
			}
			folderID = id
		default:
			folderID, _ = folder.CustomID()
		}

		request := acc.BatchUpdatePermissionsRequest{
			Permissions: []acc.UpdatePermissionRequest{{
				SubjectID:   params.UserID,
				SubjectType: acc.SubjectTypeUser,
				Actions:     actions,
			}},
		}
		if err := s.permissions.BatchUpdatePermissions(ctx, projectID, folderID, request); err != nil {
			return bulk.Failed(err.Error(), bulk.IsRetryableError(err.Error()))
		}
		return bulk.Success()
	}
}
