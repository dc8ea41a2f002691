package acc

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// AccountAdminClient talks to the account administration API: user lookup
// and project enumeration.
type AccountAdminClient struct {
	restClient
}

// NewAccountAdminClient creates an account admin client.
func NewAccountAdminClient(tokens oauth2.TokenSource, opts Options) *AccountAdminClient {
	return &AccountAdminClient{restClient: newRESTClient(tokens, opts)}
}

func (c *AccountAdminClient) adminURL(accountID string) string {
	return fmt.Sprintf(
		"%s/construction/admin/v1/accounts/%s",
		c.baseURL,
		normalizeAccountID(accountID),
	)
}

// FindUserByEmail resolves an account user from an email address. Returns
// (nil, nil) when no user matches.
func (c *AccountAdminClient) FindUserByEmail(
	ctx context.Context,
	accountID, email string,
) (*AccountUser, error) {
	url := c.adminURL(accountID) + "/users/search"
	body := map[string]string{"email": email}

	var user AccountUser
	if err := c.doJSON(ctx, http.MethodPost, url, body, &user); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("searching for user %s: %w", email, err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

// projectsPage is one page of the paginated project listing.
type projectsPage struct {
	Pagination pagination       `json:"pagination"`
	Results    []AccountProject `json:"results"`
}

// listProjects returns one page of projects. The API caps limit at 200.
func (c *AccountAdminClient) listProjects(
	ctx context.Context,
	accountID string,
	limit, offset int,
) (*projectsPage, error) {
	url := fmt.Sprintf("%s/projects?limit=%d&offset=%d", c.adminURL(accountID), limit, offset)

	var page projectsPage
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &page); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return &page, nil
}

// ListAllProjects returns every project in the account, following
// pagination internally.
func (c *AccountAdminClient) ListAllProjects(
	ctx context.Context,
	accountID string,
) ([]AccountProject, error) {
	const limit = 200

	var all []AccountProject
	offset := 0
	for {
		page, err := c.listProjects(ctx, accountID, limit, offset)
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

// GetProject fetches a single project by id.
func (c *AccountAdminClient) GetProject(
	ctx context.Context,
	accountID, projectID string,
) (*AccountProject, error) {
	url := fmt.Sprintf("%s/projects/%s", c.adminURL(accountID), projectID)

	var project AccountProject
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &project); err != nil {
		return nil, fmt.Errorf("getting project %s: %w", projectID, err)
	}
	return &project, nil
}
