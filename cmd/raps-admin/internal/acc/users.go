package acc

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ProjectUsersClient manages user membership within individual projects.
type ProjectUsersClient struct {
	restClient
}

// NewProjectUsersClient creates a project users client.
func NewProjectUsersClient(tokens oauth2.TokenSource, opts Options) *ProjectUsersClient {
	return &ProjectUsersClient{restClient: newRESTClient(tokens, opts)}
}

func (c *ProjectUsersClient) usersURL(projectID string) string {
	return fmt.Sprintf(
		"%s/construction/admin/v1/projects/%s/users",
		c.baseURL,
		normalizeAccountID(projectID),
	)
}

// usersPage is one page of the paginated member listing.
type usersPage struct {
	Pagination pagination    `json:"pagination"`
	Results    []ProjectUser `json:"results"`
}

// listProjectUsers returns one page of project members.
func (c *ProjectUsersClient) listProjectUsers(
	ctx context.Context,
	projectID string,
	limit, offset int,
) (*usersPage, error) {
	url := fmt.Sprintf("%s?limit=%d&offset=%d", c.usersURL(projectID), limit, offset)

	var page usersPage
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &page); err != nil {
		return nil, fmt.Errorf("listing project users: %w", err)
	}
	return &page, nil
}

// ListAllProjectUsers returns every member of the project, following
// pagination internally.
func (c *ProjectUsersClient) ListAllProjectUsers(
	ctx context.Context,
	projectID string,
) ([]ProjectUser, error) {
	const limit = 200

	var all []ProjectUser
	offset := 0
	for {
		page, err := c.listProjectUsers(ctx, projectID, limit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if !page.Pagination.hasMore() {
			break
		}
		offset = page.Pagination.nextOffset()
	}
	return all, nil
}

// GetProjectUser fetches a single member. A missing membership surfaces as
// an *APIError with status 404.
func (c *ProjectUsersClient) GetProjectUser(
	ctx context.Context,
	projectID, userID string,
) (*ProjectUser, error) {
	url := fmt.Sprintf("%s/%s", c.usersURL(projectID), userID)

	var user ProjectUser
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &user); err != nil {
		return nil, fmt.Errorf("getting project user %s: %w", userID, err)
	}
	return &user, nil
}

// UserExists reports whether the user is a member of the project.
func (c *ProjectUsersClient) UserExists(
	ctx context.Context,
	projectID, userID string,
) (bool, error) {
	_, err := c.GetProjectUser(ctx, projectID, userID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddUser adds a user to a project.
func (c *ProjectUsersClient) AddUser(
	ctx context.Context,
	projectID string,
	request AddProjectUserRequest,
) (*ProjectUser, error) {
	var user ProjectUser
	if err := c.doJSON(ctx, http.MethodPost, c.usersURL(projectID), request, &user); err != nil {
		return nil, fmt.Errorf("adding user to project %s: %w", projectID, err)
	}
	return &user, nil
}

// UpdateUser patches a project member's role or product access.
func (c *ProjectUsersClient) UpdateUser(
	ctx context.Context,
	projectID, userID string,
	request UpdateProjectUserRequest,
) (*ProjectUser, error) {
	url := fmt.Sprintf("%s/%s", c.usersURL(projectID), userID)

	var user ProjectUser
	if err := c.doJSON(ctx, http.MethodPatch, url, request, &user); err != nil {
		return nil, fmt.Errorf("updating project user %s: %w", userID, err)
	}
	return &user, nil
}

// RemoveUser removes a user from a project.
func (c *ProjectUsersClient) RemoveUser(
	ctx context.Context,
	projectID, userID string,
) error {
	url := fmt.Sprintf("%s/%s", c.usersURL(projectID), userID)

	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("removing user from project %s: %w", projectID, err)
	}
	return nil
}
