// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor provides tool execution with retry support.
type Executor struct {
	maxAttempts uint32
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config Config) *Executor {
	return &Executor{
		maxAttempts: config.Retries(),
		baseDelay:   100 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// Execute runs a tool, retrying retryable failures with exponential backoff.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	var lastErr error
	toolName := tool.Metadata().Name

	for attempt := uint32(0); attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			if !shouldRetry(err) {
				return FailureResult(err), nil
			}
			lastErr = err
			continue
		}
		if result.Success() || !shouldRetry(result.Error) {
			return result, nil
		}
		lastErr = result.Error
	}

	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, e.maxAttempts, errMsg), nil
}

// backoff returns the delay before the given attempt.
func (e *Executor) backoff(attempt uint32) time.Duration {
	delay := e.baseDelay * time.Duration(1<<attempt)
	if delay > e.maxDelay {
		delay = e.maxDelay
	}
	return delay
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errLower := strings.ToLower(err.Error())
	for _, s := range []string{"validation", "not allowed", "permission", "empty", "invalid"} {
		if strings.Contains(errLower, s) {
			return false
		}
	}
	return true
}

// ExecuteOnce runs a tool once without retries.
func ExecuteOnce(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}
	return tool.Execute(ctx, args)
}
