package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// Errors that can occur during client operations
var (
	// ErrNotConnected indicates the client is not connected to the server
	ErrNotConnected = errors.New("not connected to server")

	// ErrInvalidOptions indicates invalid client options
	ErrInvalidOptions = errors.New("invalid client options")

	// ErrTimeout indicates a request timed out
	ErrTimeout = errors.New("request timed out")

	// ErrRecordNotFound indicates a name has no live record
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidRequest indicates the server rejected a name or payload
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStoreFull indicates the record did not fit even after compaction,
	// or the id space is used up
	ErrStoreFull = errors.New("store is full")

	// ErrUnavailable indicates the server could not take the request right now
	ErrUnavailable = errors.New("server unavailable")
)

// IsRetryableError returns true if the error is considered retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// These errors are considered transient and can be retried
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return true
	}
	if status.Code(err) == codes.Unavailable {
		return true
	}

	// Other errors are considered permanent
	return false
}

// fromStatus maps a gRPC status onto the client error set
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrRecordNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", ErrStoreFull, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return err
	}
}

// RetryWithBackoff executes a function with exponential backoff and jitter
func RetryWithBackoff(
	ctx context.Context,
	fn RetryableFunc,
	maxRetries int,
	initialBackoff time.Duration,
	maxBackoff time.Duration,
	backoffFactor float64,
	jitter float64,
) error {
	var err error
	backoff := initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Execute the function
		err = fn()
		if err == nil {
			return nil
		}

		// Check if the error is retryable
		if !IsRetryableError(err) {
			return err
		}

		// Check if we've reached the retry limit
		if attempt >= maxRetries {
			return err
		}

		// Calculate next backoff with jitter
		jitterRange := float64(backoff) * jitter
		jitterAmount := int64(rand.Float64() * jitterRange)
		sleepTime := backoff + time.Duration(jitterAmount)

		// Check context before sleeping
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
			// Continue with next attempt
		}

		// Increase backoff for next attempt
		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return err
}

// CalculateExponentialBackoff calculates the backoff time for a given attempt
func CalculateExponentialBackoff(
	attempt int,
	initialBackoff time.Duration,
	maxBackoff time.Duration,
	backoffFactor float64,
	jitter float64,
) time.Duration {
	backoff := initialBackoff * time.Duration(math.Pow(backoffFactor, float64(attempt)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	if jitter > 0 {
		jitterRange := float64(backoff) * jitter
		jitterAmount := int64(rand.Float64() * jitterRange)
		backoff = backoff + time.Duration(jitterAmount)
	}

	return backoff
}
