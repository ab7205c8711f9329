package cron

import (
	"errors"
	"fmt"
	"time"
)

// ErrJanitorRunning is returned when Start is called on a running janitor.
var ErrJanitorRunning = errors.New("cron: janitor already running")

// InvalidIntervalError indicates a sweep interval the scheduler cannot run.
type InvalidIntervalError struct {
	Interval time.Duration
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("cron: invalid sweep interval %s: must be at least 1s", e.Interval)
}

// Is implements errors.Is for InvalidIntervalError.
func (e *InvalidIntervalError) Is(target error) bool {
	_, ok := target.(*InvalidIntervalError)
	return ok
}

// ErrInvalidInterval is a sentinel for errors.Is matching.
var ErrInvalidInterval = &InvalidIntervalError{}
