package program

import (
	"context"
	"testing"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/formatter"
	"github.com/mark3labs/dialogia/internal/prefs"
)

// fakeCaps is a scripted dialogue.Capabilities double: each test preloads
// the answers it expects the handler to ask for, in call order.
type fakeCaps struct {
	askAnswers        []dialogue.UserInput
	askChoicesAnswers []int
	devices           map[string][]ast.Device
}

func (f *fakeCaps) Ask(_ context.Context, _ dialogue.ValueCategory, _ string) (dialogue.UserInput, error) {
	if len(f.askAnswers) == 0 {
		return nil, &dialogue.CancellationError{Reason: "no scripted answer"}
	}
	next := f.askAnswers[0]
	f.askAnswers = f.askAnswers[1:]
	return next, nil
}

func (f *fakeCaps) AskChoices(_ context.Context, _ string, _ []string) (int, error) {
	if len(f.askChoicesAnswers) == 0 {
		return 0, &dialogue.CancellationError{Reason: "no scripted choice"}
	}
	next := f.askChoicesAnswers[0]
	f.askChoicesAnswers = f.askChoicesAnswers[1:]
	return next, nil
}

func (f *fakeCaps) AskQuestion(ctx context.Context, _ string, cat dialogue.ValueCategory, prompt string) (dialogue.UserInput, error) {
	return f.Ask(ctx, cat, prompt)
}

func (f *fakeCaps) InteractiveConfigure(_ context.Context, _ string) error { return nil }

func (f *fakeCaps) AskForPermission(_ context.Context, _, _ string, program *ast.Program) (*ast.Program, error) {
	return program, nil
}

func (f *fakeCaps) LookupContact(_ context.Context, _, _ string) ([]ast.Contact, error) {
	return nil, nil
}

func (f *fakeCaps) LookupLocation(_ context.Context, _ string, _ *ast.Location) (ast.Location, error) {
	return ast.Location{}, nil
}

func (f *fakeCaps) ResolveUserContext(_ context.Context, _ string) (any, error) {
	return nil, nil
}

type fakeDevices struct{ byClass map[string][]ast.Device }

func (f *fakeDevices) FindDevices(_ context.Context, class string) ([]ast.Device, error) {
	return f.byClass[class], nil
}

type fakeExecutor struct {
	events []collab.ExecutionEvent
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, _ *ast.Program) (<-chan collab.ExecutionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan collab.ExecutionEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func yesAnswer() dialogue.UserInput  { return dialogue.ParsedInput{Code: []string{"bookkeeping", "yes"}} }
func noAnswer() dialogue.UserInput   { return dialogue.ParsedInput{Code: []string{"bookkeeping", "no"}} }

func newTestHandler(caps *fakeCaps, exec *fakeExecutor, devices collab.DeviceDiscovery) *Handler {
	f := formatter.New(prefs.NewMemory(), nil)
	return New("program", 10, "", caps, nil, exec, devices, f, "en")
}

func singleSlotProgram() *ast.Program {
	action := &ast.Invocation{
		Kind: ast.KindAction, Class: "com.demo", Function: "say", DeviceID: "demo-1",
		Slots: []*ast.Slot{{Name: "message", Type: "String"}},
	}
	return &ast.Program{Statements: []*ast.Statement{{Action: action}}}
}

func TestFullFlowFillsSlotConfirmsAndExecutes(t *testing.T) {
	ctx := context.Background()
	caps := &fakeCaps{
		askAnswers: []dialogue.UserInput{
			dialogue.CommandInput{Utterance: "hello there"}, // slot value
			yesAnswer(),                                     // confirmation
		},
	}
	exec := &fakeExecutor{events: []collab.ExecutionEvent{
		{OutputType: "text", OutputValue: map[string]any{"text": "said hello there"}},
	}}
	h := newTestHandler(caps, exec, nil)

	analysis, err := h.AnalyzeCommand(ctx, dialogue.ProgramInput{Program: singleSlotProgram()})
	if err != nil {
		t.Fatalf("AnalyzeCommand: %v", err)
	}
	if analysis.Type != dialogue.AnalysisConfidentCommand {
		t.Fatalf("expected confident command, got %s", analysis.Type)
	}

	result, err := h.GetReply(ctx, analysis)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 rendered result message, got %d: %+v", len(result.Messages), result.Messages)
	}
	if h.stage != stageIdle || h.current != nil {
		t.Fatalf("expected handler to return to idle after execution, got stage=%s current=%v", h.stage, h.current)
	}
}

func TestConfirmationDeclineCancelsProgram(t *testing.T) {
	ctx := context.Background()
	caps := &fakeCaps{
		askAnswers: []dialogue.UserInput{
			dialogue.CommandInput{Utterance: "hello there"},
			noAnswer(),
		},
	}
	exec := &fakeExecutor{}
	h := newTestHandler(caps, exec, nil)

	analysis, _ := h.AnalyzeCommand(ctx, dialogue.ProgramInput{Program: singleSlotProgram()})
	result, err := h.GetReply(ctx, analysis)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if h.stage != stageIdle || h.current != nil {
		t.Fatalf("expected decline to reset to idle, got stage=%s current=%v", h.stage, h.current)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected a single nevermind message, got %+v", result.Messages)
	}
}

func TestDisambiguationPicksAmongDevices(t *testing.T) {
	ctx := context.Background()
	program := &ast.Program{Statements: []*ast.Statement{{
		Action: &ast.Invocation{Kind: ast.KindAction, Class: "com.demo", Function: "say"},
	}}}
	devices := &fakeDevices{byClass: map[string][]ast.Device{
		"com.demo": {{ID: "demo-1", Class: "com.demo", Name: "Living room"}, {ID: "demo-2", Class: "com.demo", Name: "Kitchen"}},
	}}
	caps := &fakeCaps{
		askChoicesAnswers: []int{1}, // pick "Kitchen"
		askAnswers:        []dialogue.UserInput{yesAnswer()},
	}
	exec := &fakeExecutor{events: []collab.ExecutionEvent{{OutputType: "text", OutputValue: map[string]any{"text": "ok"}}}}
	h := newTestHandler(caps, exec, devices)

	analysis, _ := h.AnalyzeCommand(ctx, dialogue.ProgramInput{Program: program})
	if _, err := h.GetReply(ctx, analysis); err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	inv := program.Invocations()[0]
	if inv.DeviceID != "demo-2" {
		t.Fatalf("expected disambiguation to resolve demo-2, got %q", inv.DeviceID)
	}
}

func TestStopAndDebugInterceptBeforeSlotFilling(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(&fakeCaps{}, &fakeExecutor{}, nil)

	analysis, err := h.AnalyzeCommand(ctx, dialogue.ParsedInput{Code: []string{"special", "stop"}})
	if err != nil {
		t.Fatalf("AnalyzeCommand: %v", err)
	}
	if analysis.Type != dialogue.AnalysisStop {
		t.Fatalf("expected STOP analysis, got %s", analysis.Type)
	}

	analysis, err = h.AnalyzeCommand(ctx, dialogue.ParsedInput{Code: []string{"special", "debug"}})
	if err != nil {
		t.Fatalf("AnalyzeCommand: %v", err)
	}
	if analysis.Type != dialogue.AnalysisDebug {
		t.Fatalf("expected DEBUG analysis, got %s", analysis.Type)
	}
}
