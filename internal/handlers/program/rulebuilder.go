package program

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/dialogue"
)

// ruleCategories names the three InvocationKind positions a "makerule"
// walk can build into, in the order offered to the user.
var ruleCategories = []struct {
	label string
	kind  ast.InvocationKind
}{
	{"Monitor something (when)", ast.KindTrigger},
	{"Get something (query)", ast.KindQuery},
	{"Do something (action)", ast.KindAction},
}

// startRuleBuilder enters the guided category → device class → device →
// command → filter walk triggered by `special:makerule`. The command is
// typed by name; no list of example commands is offered. It runs
// synchronously against the Capabilities surface rather than as its own
// stage machine, since every step is a plain ask/askChoices round trip;
// once the filter step ends, the built program goes through the ordinary
// slot-filling and confirmation path.
func (h *Handler) startRuleBuilder(ctx context.Context) (*dialogue.ReplyResult, error) {
	labels := make([]string, len(ruleCategories))
	for i, c := range ruleCategories {
		labels[i] = c.label
	}
	choice, err := h.caps.AskChoices(ctx, "What kind of rule do you want to build?", labels)
	if err != nil {
		return h.abortWith(err)
	}
	kind := ruleCategories[choice].kind

	classInput, err := h.caps.Ask(ctx, dialogue.CategoryRawString, "Which device class? (e.g. com.xkcd)")
	if err != nil {
		return h.abortWith(err)
	}
	class, err := extractString(classInput)
	if err != nil {
		return h.abortWith(err)
	}

	inv := &ast.Invocation{Kind: kind, Class: class}
	if h.devices != nil {
		resolved, err := h.disambiguateDevice(ctx, inv)
		if err != nil {
			return h.abortWith(err)
		}
		if resolved == "" {
			return h.abortWith(&dialogue.CancellationError{Reason: "nevermind"})
		}
		inv.DeviceID = resolved
	}

	fnInput, err := h.caps.Ask(ctx, dialogue.CategoryRawString, "Which command on that device?")
	if err != nil {
		return h.abortWith(err)
	}
	fn, err := extractString(fnInput)
	if err != nil {
		return h.abortWith(err)
	}
	inv.Function = fn

	stmt := &ast.Statement{Terminal: "notify"}
	switch kind {
	case ast.KindTrigger:
		stmt.Trigger = inv
	case ast.KindQuery:
		stmt.Queries = []*ast.Invocation{inv}
	case ast.KindAction:
		stmt.Action = inv
		stmt.Terminal = ""
	}

	filter, err := h.buildFilter(ctx)
	if err != nil {
		return h.abortWith(err)
	}
	stmt.Filter = filter

	h.current = &ast.Program{Statements: []*ast.Statement{stmt}}
	h.stage = stageSlotFilling
	return h.runSlotFilling(ctx)
}

// buildFilter repeatedly offers "Add a filter?" until the user declines,
// composing clauses conjunctively in the order supplied.
func (h *Handler) buildFilter(ctx context.Context) (*ast.Filter, error) {
	var filter *ast.Filter
	for {
		answer, err := h.caps.Ask(ctx, dialogue.CategoryYesNo, "Add a filter?")
		if err != nil {
			return nil, err
		}
		yes, err := answerIsYes(answer)
		if err != nil {
			return nil, err
		}
		if !yes {
			return filter, nil
		}

		fieldInput, err := h.caps.Ask(ctx, dialogue.CategoryRawString, "Filter on which field?")
		if err != nil {
			return nil, err
		}
		field, err := extractString(fieldInput)
		if err != nil {
			return nil, err
		}

		opChoice, err := h.caps.AskChoices(ctx, "Using which comparison?", []string{"==", "contains", "=~", ">", "<"})
		if err != nil {
			return nil, err
		}
		operators := []string{"==", "contains", "=~", ">", "<"}

		valueInput, err := h.caps.Ask(ctx, dialogue.CategoryRawString, "Filter value?")
		if err != nil {
			return nil, err
		}
		value, err := extractString(valueInput)
		if err != nil {
			return nil, err
		}

		if filter == nil {
			filter = &ast.Filter{}
		}
		filter.Clauses = append(filter.Clauses, ast.FilterClause{
			Field: field, Operator: operators[opChoice], Value: value,
		})
	}
}

func extractString(input dialogue.UserInput) (string, error) {
	v, err := extractValue(input)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case []string:
		return strings.TrimSpace(strings.Join(s, " ")), nil
	default:
		return fmt.Sprintf("%v", s), nil
	}
}

// runRuleBuilder exists so the FSM switch in GetReply has a stage value to
// dispatch on if the builder is ever resumed across a turn boundary;
// startRuleBuilder currently runs the whole walk in one pass so this is
// only reached if a cancellation left the stage set without clearing it.
func (h *Handler) runRuleBuilder(ctx context.Context) (*dialogue.ReplyResult, error) {
	h.stage = stageIdle
	return &dialogue.ReplyResult{
		Messages:  []dialogue.ReplyMessage{h.formatter.Nevermind(h.locale)},
		Expecting: dialogue.CategoryNone,
	}, nil
}
