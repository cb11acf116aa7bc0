// Package subdialogue implements the eight sub-dialogue primitives a handler
// borrows through dialogue.Capabilities to run a nested question/answer
// exchange without owning the loop. Each asking primitive (Ask, AskChoices,
// AskQuestion, InteractiveConfigure, AskForPermission) sends a prompt through
// the delegate, then parks directly on the user-input queue for the next
// answer; LookupContact, LookupLocation and ResolveUserContext only call
// their collaborator or the preferences store. The asking shape is the same "emit a message, then await the next queue item"
// shape the loop itself uses, just scoped to one question instead of one
// whole turn.
package subdialogue

import (
	"context"
	"fmt"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/delegate"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/prefs"
	"github.com/mark3labs/dialogia/internal/queue"
)

// Runtime implements dialogue.Capabilities. One Runtime is shared by every
// handler in a session; it never holds handler state itself.
type Runtime struct {
	inputQueue *queue.Queue
	delegate   delegate.Delegate
	icon       string

	contacts  collab.ContactLookup
	locations collab.LocationResolver
	prefs     prefs.Store
}

// New creates a Runtime. contacts/locations may be nil if the deployment
// never registers those collaborators; the corresponding primitives then
// always fail with a descriptive error instead of panicking.
func New(inputQueue *queue.Queue, d delegate.Delegate, icon string, contacts collab.ContactLookup, locations collab.LocationResolver, store prefs.Store) *Runtime {
	return &Runtime{
		inputQueue: inputQueue,
		delegate:   d,
		icon:       icon,
		contacts:   contacts,
		locations:  locations,
		prefs:      store,
	}
}

// awaitAnswer sends prompt with an AskSpecial derived from category (by
// Dispatch, which appends exactly one per reply), then blocks for the
// next user-input item. A notification arriving while a sub-dialogue is
// parked is impossible by construction: the loop only ever pops from
// inputQueue on the caller's behalf via this same call, so the notify
// queue's backlog simply waits its turn.
func (r *Runtime) awaitAnswer(ctx context.Context, category dialogue.ValueCategory, prompt string) (dialogue.UserInput, error) {
	if prompt != "" {
		if err := delegate.Dispatch(r.delegate, r.icon, &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: prompt}},
			Expecting: category,
		}); err != nil {
			return nil, fmt.Errorf("subdialogue: send prompt: %w", err)
		}
	}

	item, err := r.inputQueue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	ui, ok := item.(dialogue.UserInputItem)
	if !ok {
		return nil, &dialogue.CancellationError{Reason: "expected user input while asking a question"}
	}
	if isNevermind(ui.Input) {
		return nil, &dialogue.CancellationError{}
	}
	return ui.Input, nil
}

func isNevermind(input dialogue.UserInput) bool {
	p, ok := input.(dialogue.ParsedInput)
	if !ok {
		return false
	}
	return len(p.Code) >= 2 && p.Code[0] == "special" && p.Code[1] == "nevermind"
}

// Ask asks a free-form question expecting an answer of category.
func (r *Runtime) Ask(ctx context.Context, category dialogue.ValueCategory, prompt string) (dialogue.UserInput, error) {
	return r.awaitAnswer(ctx, category, prompt)
}

// AskChoices presents choices and returns the zero-based index picked.
// Any "None of the above" entry is appended by the caller (the
// formal-program handler's device disambiguation), not here; this primitive
// just resolves whatever index comes back against len(choices).
func (r *Runtime) AskChoices(ctx context.Context, prompt string, choices []string) (int, error) {
	if prompt != "" {
		msgs := []dialogue.ReplyMessage{dialogue.TextMessage{Text: prompt}}
		for i, c := range choices {
			msgs = append(msgs, dialogue.ChoiceMessage{Index: i, Title: c})
		}
		if err := delegate.Dispatch(r.delegate, r.icon, &dialogue.ReplyResult{
			Messages:  msgs,
			Expecting: dialogue.CategoryChoice,
		}); err != nil {
			return -1, fmt.Errorf("subdialogue: send choices: %w", err)
		}
	}

	item, err := r.inputQueue.Pop(ctx)
	if err != nil {
		return -1, err
	}
	ui, ok := item.(dialogue.UserInputItem)
	if !ok {
		return -1, &dialogue.CancellationError{Reason: "expected a choice"}
	}
	if isNevermind(ui.Input) {
		return -1, &dialogue.CancellationError{}
	}
	p, ok := ui.Input.(dialogue.ParsedInput)
	if !ok || len(p.Code) < 2 || p.Code[0] != "bookkeeping" && p.Code[0] != "special" {
		return -1, fmt.Errorf("subdialogue: expected a choice answer, got %T", ui.Input)
	}
	idx, ok := p.Entities["choice"].(int)
	if !ok || idx < 0 || idx >= len(choices) {
		return -1, fmt.Errorf("subdialogue: choice %v out of range for %d options", p.Entities["choice"], len(choices))
	}
	return idx, nil
}

// AskQuestion asks on behalf of a specific skill. skillID is not used: the
// question is asked and answered exactly as with Ask.
func (r *Runtime) AskQuestion(ctx context.Context, skillID string, category dialogue.ValueCategory, prompt string) (dialogue.UserInput, error) {
	return r.Ask(ctx, category, prompt)
}

// InteractiveConfigure asks the user whether to set up a device kind. It
// runs only that yes/no step: a yes returns nil without configuring
// anything, and any other answer returns a CancellationError. No
// device-specific setup flow is started.
func (r *Runtime) InteractiveConfigure(ctx context.Context, kind string) error {
	answer, err := r.Ask(ctx, dialogue.CategoryYesNo, fmt.Sprintf("You don't have a %s configured. Would you like to set one up now?", kind))
	if err != nil {
		return err
	}
	if !isYes(answer) {
		return &dialogue.CancellationError{Reason: "declined to configure " + kind}
	}
	return nil
}

func isYes(input dialogue.UserInput) bool {
	p, ok := input.(dialogue.ParsedInput)
	return ok && len(p.Code) >= 2 && (p.Code[0] == "special" || p.Code[0] == "bookkeeping") && p.Code[1] == "yes"
}

func isNo(input dialogue.UserInput) bool {
	p, ok := input.(dialogue.ParsedInput)
	return ok && len(p.Code) >= 2 && (p.Code[0] == "special" || p.Code[0] == "bookkeeping") && p.Code[1] == "no"
}

// AskForPermission runs the consent card for a remote program, looping
// until the user answers yes or no. Refusal is ordinary: it returns
// (nil, nil), the granted program otherwise; only an actual
// special:nevermind propagates as a CancellationError (via r.Ask).
func (r *Runtime) AskForPermission(ctx context.Context, source, permissionID string, program *ast.Program) (*ast.Program, error) {
	prompt := fmt.Sprintf("%s wants to run a command on your behalf. Allow it?", source)
	for {
		answer, err := r.Ask(ctx, dialogue.CategoryYesNo, prompt)
		if err != nil {
			return nil, err
		}
		switch {
		case isYes(answer):
			return program, nil
		case isNo(answer):
			return nil, nil
		default:
			prompt = "Sorry, yes or no?"
		}
	}
}

// LookupContact resolves name against the contacts collaborator.
func (r *Runtime) LookupContact(ctx context.Context, category, name string) ([]ast.Contact, error) {
	if r.contacts == nil {
		return nil, fmt.Errorf("subdialogue: no contact lookup collaborator configured")
	}
	return r.contacts.LookupContact(ctx, category, name)
}

// LookupLocation resolves a free-form place name, falling back to the
// previous value itself when the resolver returns an error.
func (r *Runtime) LookupLocation(ctx context.Context, key string, previous *ast.Location) (ast.Location, error) {
	if r.locations == nil {
		return ast.Location{}, fmt.Errorf("subdialogue: no location resolver collaborator configured")
	}
	loc, err := r.locations.ResolveLocation(ctx, key)
	if err != nil && previous != nil {
		return *previous, nil
	}
	return loc, err
}

// ResolveUserContext reads a $context.* variable out of persisted
// preferences: "$context.location.home" etc.
func (r *Runtime) ResolveUserContext(ctx context.Context, varName string) (any, error) {
	key := "context-" + varName
	if val, ok := r.prefs.Get(key); ok {
		return val, nil
	}
	return nil, fmt.Errorf("subdialogue: no value known for %s", varName)
}
