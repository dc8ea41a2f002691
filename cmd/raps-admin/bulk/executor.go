package bulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Executor runs bulk operations with bounded concurrency and per-item
// retry. A nil recorder disables durable per-item persistence (used by
// tests and dry runs).
type Executor struct {
	config   Config
	recorder Recorder
}

// CreateExecutor creates an executor with the given configuration. A
// non-positive concurrency falls back to the default of 10.
func CreateExecutor(config Config, recorder Recorder) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}
	return &Executor{config: config, recorder: recorder}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Run processes every item and returns the aggregate result. Items resolve
// to success, skipped or failed; per-item errors never surface as Go
// errors. The returned error is non-nil only for run-scoped conditions:
// context cancellation (the result holds whatever was collected so far) or
// a persistence failure from the recorder, which terminates the run.
func (e *Executor) Run(
	ctx context.Context,
	operationID uuid.UUID,
	items []ProcessItem,
	processor ProcessorFunc,
	onProgress ProgressFunc,
) (*OperationResult, error) {
	start := time.Now()
	total := len(items)

	if e.config.DryRun {
		return e.dryRun(operationID, items, onProgress, start), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var completed, failed, skipped atomic.Int64
	sem := semaphore.NewWeighted(int64(e.config.Concurrency))
	detailCh := make(chan ItemDetail, total)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item ProcessItem) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			result, attempts, finalized := e.processWithRetry(runCtx, item.ProjectID, processor)
			if !finalized {
				return
			}

			switch {
			case result.IsSuccess():
				completed.Add(1)
			case result.IsSkipped():
				skipped.Add(1)
			default:
				failed.Add(1)
				if !e.config.ContinueOnError {
					cancel()
				}
			}

			if onProgress != nil {
				onProgress(ProgressUpdate{
					Total:       total,
					Completed:   int(completed.Load()),
					Failed:      int(failed.Load()),
					Skipped:     int(skipped.Load()),
					CurrentItem: item.ProjectID,
				})
			}

			detailCh <- ItemDetail{
				ProjectID:   item.ProjectID,
				ProjectName: item.ProjectName,
				Result:      result,
				Attempts:    attempts,
			}
		}(item)
	}

	go func() {
		wg.Wait()
		close(detailCh)
	}()

	// Single collection loop: item outcomes are persisted here so that
	// updates to one operation are never concurrent.
	details := make([]ItemDetail, 0, total)
	var persistErr error
	for detail := range detailCh {
		details = append(details, detail)
		if e.recorder != nil && persistErr == nil {
			if err := e.recorder.RecordItem(ctx, operationID, detail); err != nil {
				persistErr = err
				cancel()
			}
		}
	}

	result := &OperationResult{
		OperationID: operationID,
		Total:       total,
		Completed:   int(completed.Load()),
		Failed:      int(failed.Load()),
		Skipped:     int(skipped.Load()),
		Duration:    time.Since(start),
		Details:     details,
	}

	if persistErr != nil {
		return result, fmt.Errorf("recording item outcome: %w", persistErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// dryRun reports every item as skipped without invoking the processor or
// the recorder.
func (e *Executor) dryRun(
	operationID uuid.UUID,
	items []ProcessItem,
	onProgress ProgressFunc,
	start time.Time,
) *OperationResult {
	total := len(items)
	details := make([]ItemDetail, 0, total)
	for _, item := range items {
		details = append(details, ItemDetail{
			ProjectID:   item.ProjectID,
			ProjectName: item.ProjectName,
			Result:      Skipped("dry-run mode"),
			Attempts:    0,
		})
	}

	if onProgress != nil {
		onProgress(ProgressUpdate{Total: total, Skipped: total})
	}

	return &OperationResult{
		OperationID: operationID,
		Total:       total,
		Completed:   0,
		Failed:      0,
		Skipped:     total,
		Duration:    time.Since(start),
		Details:     details,
	}
}

// processWithRetry runs the processor for one item until it resolves or
// retries are exhausted. The boolean is false when the run was cancelled
// before the item reached a terminal result.
func (e *Executor) processWithRetry(
	ctx context.Context,
	projectID string,
	processor ProcessorFunc,
) (ItemResult, int, bool) {
	attempts := 0
	for {
		attempts++
		result := processor(ctx, projectID)

		if !result.IsFailed() {
			return result, attempts, true
		}
		if !result.Retryable() || attempts >= e.config.MaxRetries {
			return result, attempts, true
		}

		delay := BackoffDelay(attempts-1, e.config.RetryBaseDelay, MaxBackoffDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ItemResult{}, attempts, false
		case <-timer.C:
		}
	}
}
