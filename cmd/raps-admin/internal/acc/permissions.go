package acc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// FolderPermissionsClient manages folder-level permissions within projects
// through the data management API.
type FolderPermissionsClient struct {
	restClient
}

// NewFolderPermissionsClient creates a folder permissions client.
func NewFolderPermissionsClient(tokens oauth2.TokenSource, opts Options) *FolderPermissionsClient {
	return &FolderPermissionsClient{restClient: newRESTClient(tokens, opts)}
}

// topFoldersResponse is the JSON:API shaped listing of a project's
// top-level folders.
type topFoldersResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"attributes"`
	} `json:"data"`
}

// permissionsResponse wraps folder permission entries.
type permissionsResponse struct {
	Data []struct {
		Attributes FolderPermission `json:"attributes"`
	} `json:"data"`
}

// GetPermissions lists the permission entries on a folder.
func (c *FolderPermissionsClient) GetPermissions(
	ctx context.Context,
	projectID, folderID string,
) ([]FolderPermission, error) {
	url := fmt.Sprintf(
		"%s/data/v1/projects/%s/folders/%s/permissions",
		c.baseURL,
		normalizeProjectID(projectID),
		folderID,
	)

	var resp permissionsResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting folder permissions: %w", err)
	}

	permissions := make([]FolderPermission, 0, len(resp.Data))
	for _, entry := range resp.Data {
		permissions = append(permissions, entry.Attributes)
	}
	return permissions, nil
}

// BatchUpdatePermissions applies a batch of permission changes to a folder.
func (c *FolderPermissionsClient) BatchUpdatePermissions(
	ctx context.Context,
	projectID, folderID string,
	request BatchUpdatePermissionsRequest,
) error {
	url := fmt.Sprintf(
		"%s/data/v1/projects/%s/folders/%s/permissions:batch-update",
		c.baseURL,
		normalizeProjectID(projectID),
		folderID,
	)

	if err := c.doJSON(ctx, http.MethodPost, url, request, nil); err != nil {
		return fmt.Errorf("updating folder permissions: %w", err)
	}
	return nil
}

// GetProjectFilesFolderID resolves the id of the project's "Project Files"
// root folder.
func (c *FolderPermissionsClient) GetProjectFilesFolderID(
	ctx context.Context,
	projectID string,
) (string, error) {
	return c.findTopFolder(ctx, projectID, "project files")
}

// GetPlansFolderID resolves the id of the project's "Plans" root folder.
func (c *FolderPermissionsClient) GetPlansFolderID(
	ctx context.Context,
	projectID string,
) (string, error) {
	return c.findTopFolder(ctx, projectID, "plans")
}

// findTopFolder looks a top-level folder up by display-name containment.
func (c *FolderPermissionsClient) findTopFolder(
	ctx context.Context,
	projectID, wanted string,
) (string, error) {
	url := fmt.Sprintf(
		"%s/data/v1/projects/%s/topFolders",
		c.baseURL,
		normalizeProjectID(projectID),
	)

	var resp topFoldersResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return "", fmt.Errorf("getting top folders: %w", err)
	}

	for _, folder := range resp.Data {
		name := folder.Attributes.DisplayName
		if name == "" {
			name = folder.Attributes.Name
		}
		if strings.Contains(strings.ToLower(name), wanted) {
			return folder.ID, nil
		}
	}
	return "", fmt.Errorf("%s folder not found in project %s", wanted, projectID)
}

// UserHasPermissions reports whether the user holds an explicit permission
// entry on the folder.
func (c *FolderPermissionsClient) UserHasPermissions(
	ctx context.Context,
	projectID, folderID, userID string,
) (bool, error) {
	permissions, err := c.GetPermissions(ctx, projectID, folderID)
	if err != nil {
		return false, err
	}
	for _, permission := range permissions {
		if permission.SubjectID == userID && permission.SubjectType == SubjectTypeUser {
			return true, nil
		}
	}
	return false, nil
}
