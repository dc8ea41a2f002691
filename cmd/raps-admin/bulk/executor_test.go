package bulk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []ProcessItem {
	items := make([]ProcessItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, ProcessItem{
			ProjectID:   "proj-" + string(rune('0'+i)),
			ProjectName: "Project " + string(rune('0'+i)),
		})
	}
	return items
}

func TestRunAllSuccess(t *testing.T) {
	executor := CreateExecutor(DefaultConfig(), nil)

	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(5),
		func(_ context.Context, _ string) ItemResult { return Success() },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, result.Details, 5)
	for _, detail := range result.Details {
		assert.True(t, detail.Result.IsSuccess())
		assert.Equal(t, 1, detail.Attempts)
	}
}

func TestRunDryRun(t *testing.T) {
	config := DefaultConfig()
	config.DryRun = true
	executor := CreateExecutor(config, nil)

	var calls atomic.Int64
	var updates []ProgressUpdate

	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(5),
		func(_ context.Context, _ string) ItemResult {
			calls.Add(1)
			return Success()
		},
		func(update ProgressUpdate) { updates = append(updates, update) },
	)

	require.NoError(t, err)
	assert.Equal(t, int64(0), calls.Load(), "processor must never run in dry-run mode")
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 5, result.Skipped)
	require.Len(t, updates, 1)
	assert.Equal(t, 5, updates[0].Skipped)

	for _, detail := range result.Details {
		assert.True(t, detail.Result.IsSkipped())
		assert.Equal(t, "dry-run mode", detail.Result.Reason())
		assert.Equal(t, 0, detail.Attempts)
	}
}

func TestRunTransientThenSuccess(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     1,
		MaxRetries:      3,
		RetryBaseDelay:  10 * time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var attempts atomic.Int64
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		[]ProcessItem{{ProjectID: "proj-1"}},
		func(_ context.Context, _ string) ItemResult {
			if attempts.Add(1) <= 2 {
				return Failed("429 Rate limit", true)
			}
			return Success()
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Details, 1)
	assert.Equal(t, 3, result.Details[0].Attempts)
}

func TestRunPermanentFailureNotRetried(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     2,
		MaxRetries:      5,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var calls atomic.Int64
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		[]ProcessItem{{ProjectID: "proj-1"}},
		func(_ context.Context, _ string) ItemResult {
			calls.Add(1)
			return Failed("404 Not Found", false)
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, result.Details[0].Attempts)
}

func TestRunRetriesExhausted(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     1,
		MaxRetries:      3,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var calls atomic.Int64
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		[]ProcessItem{{ProjectID: "proj-1"}},
		func(_ context.Context, _ string) ItemResult {
			calls.Add(1)
			return Failed("503 Service Unavailable", true)
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 3, result.Details[0].Attempts)
}

func TestRunMaxRetriesZeroFailsOnFirstAttempt(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     1,
		MaxRetries:      0,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		[]ProcessItem{{ProjectID: "proj-1"}},
		func(_ context.Context, _ string) ItemResult {
			return Failed("timeout", true)
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Details[0].Attempts)
}

func TestRunConcurrencyBound(t *testing.T) {
	const bound = 3
	executor := CreateExecutor(Config{
		Concurrency:     bound,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var inFlight, peak atomic.Int64
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(9),
		func(_ context.Context, _ string) ItemResult {
			current := inFlight.Add(1)
			for {
				observed := peak.Load()
				if current <= observed || peak.CompareAndSwap(observed, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return Success()
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 9, result.Completed)
	assert.LessOrEqual(t, peak.Load(), int64(bound))
}

func TestRunMixedResults(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     4,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var counter atomic.Int64
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(9),
		func(_ context.Context, _ string) ItemResult {
			switch counter.Add(1) % 3 {
			case 1:
				return Success()
			case 2:
				return Skipped("already_exists")
			default:
				return Failed("400 Bad Request", false)
			}
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 9, result.Total)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, result.Total, result.Completed+result.Failed+result.Skipped)
	assert.Len(t, result.Details, result.Total)
}

func TestRunProgressMonotonic(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     4,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	var mu sync.Mutex
	var resolved []int
	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(8),
		func(_ context.Context, _ string) ItemResult { return Success() },
		func(update ProgressUpdate) {
			mu.Lock()
			resolved = append(resolved, update.Completed+update.Failed+update.Skipped)
			mu.Unlock()
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 8, result.Completed)
	require.NotEmpty(t, resolved)
	for i := 1; i < len(resolved); i++ {
		assert.GreaterOrEqual(t, resolved[i], resolved[i-1])
	}
	assert.True(t, (ProgressUpdate{Total: 8, Completed: 8}).IsComplete())
}

func TestRunCancellation(t *testing.T) {
	executor := CreateExecutor(Config{
		Concurrency:     1,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once

	done := make(chan struct{})
	var result *OperationResult
	var runErr error
	go func() {
		defer close(done)
		result, runErr = executor.Run(
			ctx,
			uuid.New(),
			makeItems(5),
			func(ctx context.Context, _ string) ItemResult {
				once.Do(func() { close(started) })
				select {
				case <-ctx.Done():
					return Failed("connection reset", true)
				case <-time.After(5 * time.Second):
					return Success()
				}
			},
			nil,
		)
	}()

	<-started
	cancel()
	<-done

	require.ErrorIs(t, runErr, context.Canceled)
	require.NotNil(t, result)
	assert.Less(t, result.Completed, 5)
}

type recordingStore struct {
	mu      sync.Mutex
	details []ItemDetail
}

func (r *recordingStore) RecordItem(_ context.Context, _ uuid.UUID, detail ItemDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details = append(r.details, detail)
	return nil
}

func TestRunRecordsEveryOutcome(t *testing.T) {
	store := &recordingStore{}
	executor := CreateExecutor(Config{
		Concurrency:     4,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		ContinueOnError: true,
	}, store)

	result, err := executor.Run(
		context.Background(),
		uuid.New(),
		makeItems(6),
		func(_ context.Context, _ string) ItemResult { return Success() },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 6, result.Completed)
	assert.Len(t, store.details, 6)
}
