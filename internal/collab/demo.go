package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/dialogia/internal/ast"
)

// DemoNLU is a deterministic, dependency-free NLUClient used by tests and
// by the CLI harness when no LLM backend is configured. It resolves
// utterances scripted with RegisterProgram to their programs and otherwise
// falls back to treating the whole utterance as a token-array "command"
// entity, which
// lets the formal-program handler's analyzeCommand exercise its
// NONCONFIDENT/OUT_OF_DOMAIN paths in tests without a real parser.
type DemoNLU struct {
	// Programs maps a literal utterance to the program it should parse to,
	// for scripting deterministic end-to-end test scenarios.
	Programs map[string]*ast.Program
}

// NewDemoNLU creates an empty DemoNLU; call RegisterProgram to script it.
func NewDemoNLU() *DemoNLU {
	return &DemoNLU{Programs: make(map[string]*ast.Program)}
}

// RegisterProgram scripts utterance to resolve to program. Returns the
// receiver for chaining.
func (d *DemoNLU) RegisterProgram(utterance string, program *ast.Program) *DemoNLU {
	d.Programs[utterance] = program
	return d
}

func (d *DemoNLU) Parse(_ context.Context, utterance string, _ string) (*ast.Program, []string, error) {
	if p, ok := d.Programs[utterance]; ok {
		return p, nil, nil
	}
	return nil, []string{"command", strings.TrimSpace(utterance)}, nil
}

// DemoExecutor synchronously "executes" a program by emitting one canned
// result per invocation (trigger, queries, action), then closing the channel. Useful for
// exercising the result-rendering path without a real skill runtime.
type DemoExecutor struct{}

func (DemoExecutor) Execute(ctx context.Context, program *ast.Program) (<-chan ExecutionEvent, error) {
	ch := make(chan ExecutionEvent, len(program.Invocations())+1)
	go func() {
		defer close(ch)
		for _, inv := range program.Invocations() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			ch <- ExecutionEvent{
				OutputType: fmt.Sprintf("%s.%s", inv.Class, inv.Function),
				OutputValue: map[string]any{
					"_id": inv.DeviceID,
				},
			}
		}
	}()
	return ch, nil
}

// DemoDeviceDiscovery returns a fixed candidate list per class, for tests
// that exercise disambiguation deterministically.
type DemoDeviceDiscovery struct {
	Devices map[string][]ast.Device
}

func NewDemoDeviceDiscovery() *DemoDeviceDiscovery {
	return &DemoDeviceDiscovery{Devices: make(map[string][]ast.Device)}
}

func (d *DemoDeviceDiscovery) FindDevices(_ context.Context, class string) ([]ast.Device, error) {
	return d.Devices[class], nil
}

// DemoContactLookup resolves names against a fixed address book.
type DemoContactLookup struct {
	Contacts map[string][]ast.Contact
}

func NewDemoContactLookup() *DemoContactLookup {
	return &DemoContactLookup{Contacts: make(map[string][]ast.Contact)}
}

func (d *DemoContactLookup) LookupContact(_ context.Context, _ string, name string) ([]ast.Contact, error) {
	return d.Contacts[strings.ToLower(name)], nil
}

// DemoLocationResolver resolves a query string against a fixed gazetteer.
type DemoLocationResolver struct {
	Locations map[string]ast.Location
}

func NewDemoLocationResolver() *DemoLocationResolver {
	return &DemoLocationResolver{Locations: make(map[string]ast.Location)}
}

func (d *DemoLocationResolver) ResolveLocation(_ context.Context, query string) (ast.Location, error) {
	if loc, ok := d.Locations[strings.ToLower(query)]; ok {
		return loc, nil
	}
	return ast.Location{}, fmt.Errorf("location not found: %s", query)
}
