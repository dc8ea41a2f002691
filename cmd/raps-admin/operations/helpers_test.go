package operations

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/audit"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// fakeAdmin is an in-memory AdminClient.
type fakeAdmin struct {
	user     *acc.AccountUser
	findErr  error
	projects []acc.AccountProject
	listErr  error
}

func (f *fakeAdmin) FindUserByEmail(
	_ context.Context,
	_, _ string,
) (*acc.AccountUser, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.user, nil
}

func (f *fakeAdmin) ListAllProjects(
	_ context.Context,
	_ string,
) ([]acc.AccountProject, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.projects, nil
}

// fakeUsers is an in-memory UsersClient tracking membership per project.
type fakeUsers struct {
	mu      sync.Mutex
	members map[string]map[string]*acc.ProjectUser

	addCalls    []string
	removeCalls []string
	updateCalls []string

	addHook    func(projectID string) error
	removeHook func(projectID string) error
	updateHook func(projectID string) error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{members: make(map[string]map[string]*acc.ProjectUser)}
}

func (f *fakeUsers) addMember(projectID, userID, roleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[projectID] == nil {
		f.members[projectID] = make(map[string]*acc.ProjectUser)
	}
	f.members[projectID][userID] = &acc.ProjectUser{ID: userID, RoleID: roleID}
}

func (f *fakeUsers) UserExists(_ context.Context, projectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[projectID][userID]
	return ok, nil
}

func (f *fakeUsers) GetProjectUser(
	_ context.Context,
	projectID, userID string,
) (*acc.ProjectUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.members[projectID][userID]
	if !ok {
		return nil, fmt.Errorf("request failed (404 Not Found): user not in project")
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) AddUser(
	_ context.Context,
	projectID string,
	request acc.AddProjectUserRequest,
) (*acc.ProjectUser, error) {
	f.mu.Lock()
	hook := f.addHook
	f.addCalls = append(f.addCalls, projectID)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(projectID); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[projectID] == nil {
		f.members[projectID] = make(map[string]*acc.ProjectUser)
	}
	user := &acc.ProjectUser{ID: request.UserID, RoleID: request.RoleID}
	f.members[projectID][request.UserID] = user
	return user, nil
}

func (f *fakeUsers) UpdateUser(
	_ context.Context,
	projectID, userID string,
	request acc.UpdateProjectUserRequest,
) (*acc.ProjectUser, error) {
	f.mu.Lock()
	hook := f.updateHook
	f.updateCalls = append(f.updateCalls, projectID)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(projectID); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.members[projectID][userID]
	if !ok {
		return nil, fmt.Errorf("request failed (404 Not Found): user not in project")
	}
	if request.RoleID != nil {
		user.RoleID = *request.RoleID
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) RemoveUser(_ context.Context, projectID, userID string) error {
	f.mu.Lock()
	hook := f.removeHook
	f.removeCalls = append(f.removeCalls, projectID)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(projectID); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[projectID][userID]; !ok {
		return fmt.Errorf("request failed (404 Not Found): user not in project")
	}
	delete(f.members[projectID], userID)
	return nil
}

// fakePermissions is an in-memory PermissionsClient.
type fakePermissions struct {
	mu          sync.Mutex
	folders     map[string]string // projectID -> folder id
	batchCalls  []string
	lastActions []string
	batchHook   func(projectID string) error
}

func newFakePermissions() *fakePermissions {
	return &fakePermissions{folders: make(map[string]string)}
}

func (f *fakePermissions) GetProjectFilesFolderID(
	_ context.Context,
	projectID string,
) (string, error) {
	return f.lookupFolder(projectID, "project files")
}

func (f *fakePermissions) GetPlansFolderID(
	_ context.Context,
	projectID string,
) (string, error) {
	return f.lookupFolder(projectID, "plans")
}

func (f *fakePermissions) lookupFolder(projectID, kind string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folderID, ok := f.folders[projectID]
	if !ok {
		return "", fmt.Errorf("%s folder not found in project %s", kind, projectID)
	}
	return folderID, nil
}

func (f *fakePermissions) BatchUpdatePermissions(
	_ context.Context,
	projectID, _ string,
	request acc.BatchUpdatePermissionsRequest,
) error {
	f.mu.Lock()
	hook := f.batchHook
	f.batchCalls = append(f.batchCalls, projectID)
	if len(request.Permissions) > 0 {
		f.lastActions = request.Permissions[0].Actions
	}
	f.mu.Unlock()

	if hook != nil {
		return hook(projectID)
	}
	return nil
}

// testEnv bundles a service over fakes and a temp-dir state store.
type testEnv struct {
	admin       *fakeAdmin
	users       *fakeUsers
	permissions *fakePermissions
	auditor     *audit.MemoryStorage
	service     *Service
}

func projects(ids ...string) []acc.AccountProject {
	out := make([]acc.AccountProject, 0, len(ids))
	for _, id := range ids {
		out = append(out, acc.AccountProject{ID: id, Name: "Project " + id})
	}
	return out
}

func newTestEnv(t *testing.T, projectIDs ...string) *testEnv {
	t.Helper()

	store, err := state.CreateStoreWithDir(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	env := &testEnv{
		admin: &fakeAdmin{
			user:     &acc.AccountUser{ID: "user-1", Email: "user@example.com"},
			projects: projects(projectIDs...),
		},
		users:       newFakeUsers(),
		permissions: newFakePermissions(),
		auditor:     audit.NewMemoryStorage(),
	}

	env.service, err = CreateService(
		env.admin,
		env.users,
		env.permissions,
		store,
		audit.NewLogger(env.auditor),
		zerolog.Nop(),
	)
	require.NoError(t, err)
	return env
}

// filterMatchingNothing selects an id no project carries.
func filterMatchingNothing() *filter.ProjectFilter {
	return &filter.ProjectFilter{IncludeIDs: []string{"no-such-project"}}
}

// fastConfig keeps retries quick in tests.
func fastConfig() bulk.Config {
	return bulk.Config{
		Concurrency:     4,
		MaxRetries:      2,
		RetryBaseDelay:  1,
		ContinueOnError: true,
	}
}
