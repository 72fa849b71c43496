// Package status reports run phase transitions to an optional shared store.
package status

import "context"

// Run phases
const (
	Queued  = "queued"
	Running = "running"
	Success = "success"
	Failed  = "failed"
)

// Reporter records the status of a run. Implementations must not make a run
// fail: callers log returned errors and carry on.
type Reporter interface {
	// Report writes the phase of runID with a human message. items is the
	// processed count, set on success.
	Report(ctx context.Context, runID, phase, message string, items *int) error

	// Close releases the connection
	Close() error
}

// NopReporter drops every report. Used when no status store is configured or
// no run ID was given.
type NopReporter struct{}

func (NopReporter) Report(context.Context, string, string, string, *int) error { return nil }
func (NopReporter) Close() error                                               { return nil }
