// Package collab defines the narrow interfaces to the external
// collaborators placed out of scope: the NLU/NLG network client, the
// program executor, and device discovery's contact/location lookups.
// Demo in-process implementations are provided so the module runs without
// any live backend; production deployments swap them for real clients.
package collab

import (
	"context"

	"github.com/mark3labs/dialogia/internal/ast"
)

// NLUClient turns a free-form utterance into a typed Program or a
// bookkeeping token array. It is the parser/type-checker collaborator;
// confirmation prose is rendered by internal/formatter, not here.
type NLUClient interface {
	// Parse classifies an utterance, returning either a fully-typed program
	// (when the intent is unambiguous) or a bookkeeping token array (when
	// the utterance should be handled as a UI-style command).
	Parse(ctx context.Context, utterance string, locale string) (*ast.Program, []string, error)
}

// ExecutionEvent is one {outputType, outputValue} pair streamed back by an
// Executor while a program runs.
type ExecutionEvent struct {
	OutputType  string
	OutputValue map[string]any
	Err         error // non-nil means this result failed; triggers a per-result apology
}

// Executor hands a confirmed program off for execution and streams its
// results back. Implementations own device discovery, OAuth, and the
// skill's actual side effects — all out of scope.
type Executor interface {
	Execute(ctx context.Context, program *ast.Program) (<-chan ExecutionEvent, error)
}

// DeviceDiscovery resolves a device kind to candidate instances for
// disambiguation.
type DeviceDiscovery interface {
	FindDevices(ctx context.Context, class string) ([]ast.Device, error)
}

// ContactLookup backs the lookupContact primitive.
type ContactLookup interface {
	LookupContact(ctx context.Context, category, name string) ([]ast.Contact, error)
}

// LocationResolver backs the lookupLocation primitive.
type LocationResolver interface {
	ResolveLocation(ctx context.Context, query string) (ast.Location, error)
}
