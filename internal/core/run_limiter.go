package core

// run_limiter.go bounds concurrent import runs.
//
// A run holds one slot of a semaphore for its whole duration. Two runs may
// not write into the same output directory at once: the second one fails
// immediately with ErrOutputBusy instead of waiting, since its files would
// replace the first run's.

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// ErrTooManyRuns is returned when no run slot frees up within the wait time.
var ErrTooManyRuns = errors.New("too many concurrent runs, please try again later")

// ErrOutputBusy is returned when another run is writing the same output directory.
var ErrOutputBusy = errors.New("output directory is in use by another run")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter controls concurrent runs using a semaphore.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.Mutex
	outputs map[string]bool
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent
// simultaneous runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		outputs:   make(map[string]bool),
	}
}

// Acquire takes a run slot for output directory dir.
// The caller must call Release(dir) when the run completes.
func (l *RunLimiter) Acquire(ctx context.Context, dir string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRuns
	}

	key := outputKey(dir)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outputs[key] {
		<-l.semaphore
		return fmt.Errorf("%w: %s", ErrOutputBusy, dir)
	}
	l.outputs[key] = true
	return nil
}

// Release frees the slot taken by Acquire(dir).
func (l *RunLimiter) Release(dir string) {
	l.mu.Lock()
	delete(l.outputs, outputKey(dir))
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *RunLimiter) ActiveCount() int {
	return len(l.semaphore)
}

// MaxConcurrent returns the maximum allowed concurrent runs.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// WaitForDrain blocks until no run is active or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func outputKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
