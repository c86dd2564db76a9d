// Package adaptor defines the contract for the wrapped application the
// runtime drives through its lifecycle.
package adaptor

import "context"

// Adaptor is one long-running wrapped application. Implementations are not
// required to be safe for concurrent use; the runner serializes every call.
type Adaptor interface {
	// Start initializes the wrapped application. Called exactly once before
	// any Run.
	Start(ctx context.Context) error
	// Run executes one unit of work. Cancelling ctx must interrupt the unit
	// without corrupting the adaptor for a subsequent Stop.
	Run(ctx context.Context, payload map[string]any) (map[string]any, error)
	// Stop requests graceful termination of the wrapped application.
	Stop(ctx context.Context) error
	// Cleanup releases whatever Stop left behind. Best-effort, always called
	// last.
	Cleanup(ctx context.Context) error
}
