package host

import (
	"context"

	"github.com/operator-ai/deskpilot/internal/action"
)

// Result is the raw outcome of one primitive invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Host performs automation primitives against a live machine. The core
// never talks to the OS directly; it depends only on this interface, so
// the implementation can vary by platform. Implementations must honor the
// context deadline on every invocation.
type Host interface {
	// Invoke performs one primitive. A non-nil error means the host
	// itself could not run the primitive; a failed primitive is a
	// Result with a non-zero exit code.
	Invoke(ctx context.Context, prim action.Primitive) (Result, error)
	// Supports reports whether the host can perform the given kind.
	Supports(kind action.Kind) bool
}
