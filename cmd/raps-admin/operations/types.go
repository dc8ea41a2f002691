// Package operations implements the bulk administrative operations:
// adding, removing and re-roling users across filtered project sets, and
// updating folder permissions. Each operation shares the same skeleton:
// resolve the subject, expand targets through the project filter, persist
// state, drive the executor, finalize.
package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
)

// AdminClient is the slice of the account admin API the drivers consume.
type AdminClient interface {
	FindUserByEmail(ctx context.Context, accountID, email string) (*acc.AccountUser, error)
	ListAllProjects(ctx context.Context, accountID string) ([]acc.AccountProject, error)
}

// UsersClient is the slice of the project users API the drivers consume.
type UsersClient interface {
	UserExists(ctx context.Context, projectID, userID string) (bool, error)
	GetProjectUser(ctx context.Context, projectID, userID string) (*acc.ProjectUser, error)
	AddUser(
		ctx context.Context,
		projectID string,
		request acc.AddProjectUserRequest,
	) (*acc.ProjectUser, error)
	UpdateUser(
		ctx context.Context,
		projectID, userID string,
		request acc.UpdateProjectUserRequest,
	) (*acc.ProjectUser, error)
	RemoveUser(ctx context.Context, projectID, userID string) error
}

// PermissionsClient is the slice of the folder permissions API the drivers
// consume.
type PermissionsClient interface {
	GetProjectFilesFolderID(ctx context.Context, projectID string) (string, error)
	GetPlansFolderID(ctx context.Context, projectID string) (string, error)
	BatchUpdatePermissions(
		ctx context.Context,
		projectID, folderID string,
		request acc.BatchUpdatePermissionsRequest,
	) error
}

// UserNotFoundError means the subject email could not be resolved to an
// account user. No state is persisted when this is returned.
type UserNotFoundError struct {
	Email string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %s not found in account", e.Email)
}

// PermissionLevel is a discrete folder permission tier.
type PermissionLevel string

// PermissionLevel values.
const (
	PermissionViewOnly               PermissionLevel = "view_only"
	PermissionViewDownload           PermissionLevel = "view_download"
	PermissionUploadOnly             PermissionLevel = "upload_only"
	PermissionViewDownloadUpload     PermissionLevel = "view_download_upload"
	PermissionViewDownloadUploadEdit PermissionLevel = "view_download_upload_edit"
	PermissionFolderControl          PermissionLevel = "folder_control"
)

// ParsePermissionLevel parses a permission level name. Hyphens are
// accepted in place of underscores.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch PermissionLevel(normalized) {
	case PermissionViewOnly, PermissionViewDownload, PermissionUploadOnly,
		PermissionViewDownloadUpload, PermissionViewDownloadUploadEdit,
		PermissionFolderControl:
		return PermissionLevel(normalized), nil
	}
	return "", fmt.Errorf(
		"unknown permission level %q, expected one of: view_only, view_download, "+
			"upload_only, view_download_upload, view_download_upload_edit, folder_control", s)
}

// Actions returns the wire action tokens granted by the level.
func (l PermissionLevel) Actions() []string {
	switch l {
	case PermissionViewOnly:
		return []string{"VIEW", "COLLABORATE"}
	case PermissionViewDownload:
		return []string{"VIEW", "COLLABORATE", "DOWNLOAD"}
	case PermissionUploadOnly:
		return []string{"VIEW", "COLLABORATE", "UPLOAD"}
	case PermissionViewDownloadUpload:
		return []string{"VIEW", "COLLABORATE", "DOWNLOAD", "UPLOAD"}
	case PermissionViewDownloadUploadEdit:
		return []string{"VIEW", "COLLABORATE", "DOWNLOAD", "UPLOAD", "EDIT"}
	case PermissionFolderControl:
		return []string{"VIEW", "COLLABORATE", "DOWNLOAD", "UPLOAD", "EDIT", "PUBLISH", "CONTROL"}
	}
	return nil
}

// folderKind discriminates the FolderType variants.
type folderKind string

const (
	folderProjectFiles folderKind = "project_files"
	folderPlans        folderKind = "plans"
	folderCustom       folderKind = "custom"
)

// FolderType selects the folder a permission change applies to: the
// Project Files root, the Plans root, or an explicit folder id.
type FolderType struct {
	kind     folderKind
	folderID string
}

// ProjectFilesFolder selects the Project Files root folder.
func ProjectFilesFolder() FolderType {
	return FolderType{kind: folderProjectFiles}
}

// PlansFolder selects the Plans root folder.
func PlansFolder() FolderType {
	return FolderType{kind: folderPlans}
}

// CustomFolder selects an explicit folder id.
func CustomFolder(folderID string) FolderType {
	return FolderType{kind: folderCustom, folderID: folderID}
}

// ParseFolderType parses "project_files", "plans" or "custom:<folder-id>".
func ParseFolderType(s string) (FolderType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch {
	case normalized == string(folderProjectFiles):
		return ProjectFilesFolder(), nil
	case normalized == string(folderPlans):
		return PlansFolder(), nil
	case strings.HasPrefix(strings.TrimSpace(s), "custom:"):
		folderID := strings.TrimPrefix(strings.TrimSpace(s), "custom:")
		if folderID == "" {
			return FolderType{}, fmt.Errorf("custom folder type needs a folder id")
		}
		return CustomFolder(folderID), nil
	}
	return FolderType{}, fmt.Errorf(
		"unknown folder type %q, expected: project_files, plans, custom:<folder-id>", s)
}

// IsProjectFiles reports whether the Project Files root is selected.
func (f FolderType) IsProjectFiles() bool { return f.kind == folderProjectFiles }

// IsPlans reports whether the Plans root is selected.
func (f FolderType) IsPlans() bool { return f.kind == folderPlans }

// CustomID returns the explicit folder id, if one is selected.
func (f FolderType) CustomID() (string, bool) {
	return f.folderID, f.kind == folderCustom
}

// String renders the persisted form.
func (f FolderType) String() string {
	if f.kind == folderCustom {
		return "custom:" + f.folderID
	}
	return string(f.kind)
}

// AddUserParams are the inputs for a bulk add-user operation.
type AddUserParams struct {
	AccountID string
	UserEmail string
	RoleID    string
	Products  []acc.ProductAccess
}

// RemoveUserParams are the inputs for a bulk remove-user operation.
type RemoveUserParams struct {
	AccountID string
	UserEmail string
}

// UpdateRoleParams are the inputs for a bulk role update. FromRoleID, when
// set, restricts the update to members currently holding that role.
type UpdateRoleParams struct {
	AccountID  string
	UserEmail  string
	NewRoleID  string
	FromRoleID string
}

// FolderRightsParams are the inputs for a bulk folder permission update.
type FolderRightsParams struct {
	AccountID string
	UserEmail string
	Level     PermissionLevel
	Folder    FolderType
}

// Persisted parameter layouts. The resolved subject id is stored so resume
// never re-queries it.

type addUserState struct {
	AccountID string              `json:"account_id"`
	UserEmail string              `json:"user_email"`
	UserID    string              `json:"user_id"`
	RoleID    string              `json:"role_id,omitempty"`
	Products  []acc.ProductAccess `json:"products,omitempty"`
}

type removeUserState struct {
	AccountID string `json:"account_id"`
	UserEmail string `json:"user_email"`
	UserID    string `json:"user_id"`
}

type updateRoleState struct {
	AccountID  string `json:"account_id"`
	UserEmail  string `json:"user_email"`
	UserID     string `json:"user_id"`
	NewRoleID  string `json:"new_role_id"`
	FromRoleID string `json:"from_role_id,omitempty"`
}

type folderRightsState struct {
	AccountID       string `json:"account_id"`
	UserEmail       string `json:"user_email"`
	UserID          string `json:"user_id"`
	PermissionLevel string `json:"permission_level"`
	FolderType      string `json:"folder_type"`
}

// isNotFoundText reports whether upstream error text describes a missing
// resource.
func isNotFoundText(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	return strings.Contains(lower, "404") || strings.Contains(lower, "not found")
}
