package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay cap
	Multiplier   float64       // Exponential backoff multiplier (e.g., 2.0)
	Jitter       bool          // Whether to add random jitter to delays
}

// RetryConfig holds separate retry policies for LLM and tool calls.
type RetryConfig struct {
	LLMPolicy  RetryPolicy // Policy for LLM API calls
	ToolPolicy RetryPolicy // Policy for tool executions
}

// DefaultRetryConfig is defined in config.go for centralized configuration management.

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy executes a function with retry logic based on the policy.
// Returns the result on success, or the last error if all retries are exhausted.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	attempt := 0

	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Classify the error
		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}

		// Check if we've exhausted retries
		if attempt >= policy.MaxRetries {
			return zero, NewRetryExhaustedError(err, attempt, policy.MaxRetries, false)
		}

		// For "maybe" class, limit to 1-2 retries
		if class == RetryClassMaybe && attempt >= 2 {
			return zero, NewRetryExhaustedError(err, attempt, 2, true)
		}

		// Calculate delay
		delay := calculateDelay(policy, attempt, err)

		// Call retry hook if provided
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		// Wait before retrying
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
			// Continue to next attempt
		}

		attempt++
	}
}

// calculateDelay computes the delay for a retry attempt.
func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	// Check for Retry-After header
	retryAfter := ExtractRetryAfter(err)
	if retryAfter > 0 {
		// Use Retry-After if present, but cap at MaxDelay
		if retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	// Exponential backoff: initialDelay * (multiplier ^ attempt)
	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))

	// Cap at MaxDelay
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	// Add jitter if enabled (0-20% random variation)
	if policy.Jitter {
		jitter := rand.Float64() * 0.2 * delay // 0-20% jitter
		delay += jitter
	}

	return time.Duration(delay)
}

// RetryToolCall wraps a tool dispatch function with retry logic. Callers
// (internal/mcp's router) supply the dispatch closure and whether the tool
// is retryable; this keeps engine free of any dependency on the MCP pool.
func RetryToolCall(
	ctx context.Context,
	policy RetryPolicy,
	toolRetryable bool,
	dispatch func(ctx context.Context) (string, error),
	onRetry func(attempt int, delay time.Duration, err error),
) (string, error) {
	if !toolRetryable {
		policy = RetryPolicy{MaxRetries: 0}
	}

	return RetryWithPolicy(
		ctx,
		policy,
		dispatch,
		func(err error) RetryClass {
			return ClassifyToolError(err, toolRetryable)
		},
		onRetry,
	)
}
