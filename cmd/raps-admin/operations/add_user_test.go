package operations

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/audit"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

func addUserParams() AddUserParams {
	return AddUserParams{
		AccountID: "acct-1",
		UserEmail: "user@example.com",
		RoleID:    "role-pm",
	}
}

func TestBulkAddUserAllNew(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2", "proj-3")

	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, env.users.addCalls, 3)
}

func TestBulkAddUserSkipsExistingMembers(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2", "proj-3", "proj-4", "proj-5")
	for _, projectID := range []string{"proj-1", "proj-3", "proj-5"} {
		env.users.addMember(projectID, "user-1", "role-pm")
	}

	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	for _, detail := range result.Details {
		if detail.Result.IsSkipped() {
			assert.Equal(t, "already_exists", detail.Result.Reason())
		}
	}
}

func TestBulkAddUserSecondRunSkipsAll(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2", "proj-3")

	first, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, first.Completed)

	second, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Completed)
	assert.Equal(t, 3, second.Skipped)
	for _, detail := range second.Details {
		assert.Equal(t, "already_exists", detail.Result.Reason())
	}
}

func TestBulkAddUserUnknownSubject(t *testing.T) {
	env := newTestEnv(t, "proj-1")
	env.admin.user = nil

	_, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)

	var notFound *UserNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user@example.com", notFound.Email)

	// No state was persisted for the aborted operation.
	summaries, listErr := env.service.Store().List(context.Background(), nil)
	require.NoError(t, listErr)
	assert.Empty(t, summaries)
}

func TestBulkAddUserEmptyTargetSet(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2")

	result, err := env.service.BulkAddUser(
		context.Background(),
		addUserParams(),
		filterMatchingNothing(),
		fastConfig(),
		nil,
	)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", result.OperationID.String())

	summaries, err := env.service.Store().List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summaries, "an empty target set persists no state")
}

func TestBulkAddUserDryRun(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2", "proj-3")

	config := fastConfig()
	config.DryRun = true
	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, config, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, result.Completed)
	assert.Empty(t, env.users.addCalls, "dry run must not add users upstream")
	for _, detail := range result.Details {
		assert.Equal(t, "dry-run mode", detail.Result.Reason())
		assert.Equal(t, 0, detail.Attempts)
	}

	summaries, err := env.service.Store().List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summaries, "dry run must not persist state")
}

func TestBulkAddUserPersistsOutcomes(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2")

	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	record, err := env.service.Store().Load(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, record.Status)
	assert.Len(t, record.Results, 2)
	assert.Contains(t, string(record.Parameters), `"user_id":"user-1"`,
		"resolved subject id must be persisted for resume")
}

func TestBulkAddUserFailureMarksOperationFailed(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2")
	env.users.addHook = func(projectID string) error {
		if projectID == "proj-2" {
			return errors.New("request failed (400 Bad Request): invalid role")
		}
		return nil
	}

	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)

	record, err := env.service.Store().Load(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, record.Status)
}

func TestBulkAddUserRetriesTransientFailures(t *testing.T) {
	env := newTestEnv(t, "proj-1")

	var calls int
	env.users.addHook = func(string) error {
		calls++
		if calls < 3 {
			return errors.New("request failed (429 Too Many Requests): slow down")
		}
		return nil
	}

	config := fastConfig()
	config.MaxRetries = 3
	result, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, config, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	require.Len(t, result.Details, 1)
	assert.Equal(t, 3, result.Details[0].Attempts)
}

func TestBulkAddUserWritesAuditTrail(t *testing.T) {
	env := newTestEnv(t, "proj-1")

	_, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.NoError(t, err)

	entries := env.auditor.Entries()
	require.NotEmpty(t, entries)
	actions := make([]audit.Action, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
		assert.Equal(t, "bulk_operation", entry.Resource)
	}
	assert.Contains(t, actions, audit.ActionCreate)
	assert.Contains(t, actions, audit.ActionUpdate)
}

func TestBulkAddUserUpstreamListFailure(t *testing.T) {
	env := newTestEnv(t, "proj-1")
	env.admin.listErr = fmt.Errorf("request failed (503 Service Unavailable): maintenance")

	_, err := env.service.BulkAddUser(
		context.Background(), addUserParams(), nil, fastConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing projects")

	summaries, listErr := env.service.Store().List(context.Background(), nil)
	require.NoError(t, listErr)
	assert.Empty(t, summaries)
}

func TestBulkAddUserCancellationPersistsCancelledStatus(t *testing.T) {
	env := newTestEnv(t, "proj-1", "proj-2", "proj-3", "proj-4")

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once bool
	env.users.addHook = func(string) error {
		if !once {
			once = true
			close(started)
		}
		<-ctx.Done()
		return errors.New("request failed (400 Bad Request): aborted")
	}

	config := fastConfig()
	config.Concurrency = 1
	config.MaxRetries = 1

	done := make(chan struct{})
	var result *bulk.OperationResult
	var runErr error
	go func() {
		defer close(done)
		result, runErr = env.service.BulkAddUser(ctx, addUserParams(), nil, config, nil)
	}()

	<-started
	cancel()
	<-done

	require.ErrorIs(t, runErr, context.Canceled)
	require.NotNil(t, result)

	record, err := env.service.Store().Load(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCancelled, record.Status)
}
