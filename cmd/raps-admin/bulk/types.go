// Package bulk provides the parallel execution engine for bulk
// administrative operations: bounded concurrency, per-item retry with
// exponential backoff, dry-run short-circuiting and progress tracking.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config controls bulk execution behavior.
type Config struct {
	// Number of concurrent item processors (default: 10).
	Concurrency int `json:"concurrency"`
	// Maximum attempts per item, including the first (default: 5).
	MaxRetries int `json:"max_retries"`
	// Base delay for exponential backoff (default: 1s).
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	// Keep processing remaining items after a failure (default: true).
	ContinueOnError bool `json:"continue_on_error"`
	// Preview mode: report every item as skipped without calling the
	// processor (default: false).
	DryRun bool `json:"dry_run"`
}

// DefaultConfig returns the default execution configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		MaxRetries:      5,
		RetryBaseDelay:  time.Second,
		ContinueOnError: true,
		DryRun:          false,
	}
}

// ProgressUpdate is a snapshot of operation progress delivered to callbacks.
// Counters are read independently; the snapshot is not linearized across
// them.
type ProgressUpdate struct {
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	CurrentItem string `json:"current_item,omitempty"`
}

// Percentage returns overall completion as a value in [0, 100].
func (p ProgressUpdate) Percentage() float64 {
	if p.Total == 0 {
		return 100.0
	}
	return float64(p.Completed+p.Failed+p.Skipped) / float64(p.Total) * 100.0
}

// IsComplete reports whether every item has been resolved.
func (p ProgressUpdate) IsComplete() bool {
	return p.Completed+p.Failed+p.Skipped >= p.Total
}

// resultKind discriminates the ItemResult variants.
type resultKind uint8

const (
	kindSuccess resultKind = iota
	kindSkipped
	kindFailed
)

// ItemResult is the outcome of processing a single item. It is a tagged
// variant: exactly one of Success, Skipped{reason} or
// Failed{error, retryable}.
type ItemResult struct {
	kind      resultKind
	reason    string
	errMsg    string
	retryable bool
}

// Success returns the successful item result.
func Success() ItemResult {
	return ItemResult{kind: kindSuccess}
}

// Skipped returns a skipped item result with the given reason.
func Skipped(reason string) ItemResult {
	return ItemResult{kind: kindSkipped, reason: reason}
}

// Failed returns a failed item result carrying the error text and whether
// the failure is retryable.
func Failed(errMsg string, retryable bool) ItemResult {
	return ItemResult{kind: kindFailed, errMsg: errMsg, retryable: retryable}
}

// IsSuccess reports whether the result is the Success variant.
func (r ItemResult) IsSuccess() bool { return r.kind == kindSuccess }

// IsSkipped reports whether the result is the Skipped variant.
func (r ItemResult) IsSkipped() bool { return r.kind == kindSkipped }

// IsFailed reports whether the result is the Failed variant.
func (r ItemResult) IsFailed() bool { return r.kind == kindFailed }

// Reason returns the skip reason; empty unless the result is Skipped.
func (r ItemResult) Reason() string { return r.reason }

// ErrorMessage returns the failure text; empty unless the result is Failed.
func (r ItemResult) ErrorMessage() string { return r.errMsg }

// Retryable reports whether a Failed result may be retried.
func (r ItemResult) Retryable() bool { return r.kind == kindFailed && r.retryable }

func (r ItemResult) String() string {
	switch r.kind {
	case kindSuccess:
		return "success"
	case kindSkipped:
		return fmt.Sprintf("skipped (%s)", r.reason)
	default:
		return fmt.Sprintf("failed (%s)", r.errMsg)
	}
}

type skippedPayload struct {
	Reason string `json:"reason"`
}

type failedPayload struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// MarshalJSON encodes the result as an externally-tagged variant:
// "Success", {"Skipped":{"reason":…}} or {"Failed":{"error":…,"retryable":…}}.
func (r ItemResult) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindSuccess:
		return json.Marshal("Success")
	case kindSkipped:
		return json.Marshal(map[string]skippedPayload{"Skipped": {Reason: r.reason}})
	default:
		return json.Marshal(map[string]failedPayload{
			"Failed": {Error: r.errMsg, Retryable: r.retryable},
		})
	}
}

// UnmarshalJSON decodes the externally-tagged variant form.
func (r *ItemResult) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "Success" {
			return fmt.Errorf("unknown item result variant %q", tag)
		}
		*r = Success()
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid item result encoding: %w", err)
	}
	if raw, ok := obj["Skipped"]; ok {
		var p skippedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid Skipped payload: %w", err)
		}
		*r = Skipped(p.Reason)
		return nil
	}
	if raw, ok := obj["Failed"]; ok {
		var p failedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid Failed payload: %w", err)
		}
		*r = Failed(p.Error, p.Retryable)
		return nil
	}
	return fmt.Errorf("unknown item result variant")
}

// ProcessItem is a single unit of work. ProjectID is the stable identifier
// used for API calls and state keys; ProjectName is display-only.
type ProcessItem struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
}

// ItemDetail is the per-item outcome of a run. Attempts counts total tries;
// 1 means the item resolved on the first try, 0 is only produced by
// dry-run mode.
type ItemDetail struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name,omitempty"`
	Result      ItemResult `json:"result"`
	Attempts    int        `json:"attempts"`
}

// OperationResult is the terminal aggregate of a bulk run. Details holds
// per-item outcomes in no particular order.
type OperationResult struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
	Details     []ItemDetail  `json:"details"`
}

// ProcessorFunc applies the operation to one project. It must be safe to
// call from multiple goroutines. Per-item errors are reported through the
// returned ItemResult, never as panics.
type ProcessorFunc func(ctx context.Context, projectID string) ItemResult

// ProgressFunc receives progress snapshots. Invocations may arrive from
// concurrent tasks; the callback must not block indefinitely.
type ProgressFunc func(update ProgressUpdate)

// Recorder durably records finalized item outcomes. The executor serializes
// all RecordItem calls for a run from a single collection goroutine.
type Recorder interface {
	RecordItem(ctx context.Context, operationID uuid.UUID, detail ItemDetail) error
}
