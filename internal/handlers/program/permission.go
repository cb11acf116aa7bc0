package program

import (
	"context"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/dialogue"
)

// permission option indices match the five-option consent card order named
//, fixed so tests can assert on them without string matching.
const (
	permYesOnce = iota
	permAlwaysAnyone
	permAlwaysPrincipal
	permNo
	permOnlyIf
)

var permissionLabels = []string{
	"Yes, just this once",
	"Always allow, from anyone",
	"Always allow, from this person",
	"No",
	"Only if...",
}

// requestPermission presents the five-option consent card for a program a
// remote principal wants to run against a local device. "Only if"
// routes into the filter builder and a yes/no confirmation; declining that
// confirmation loops back to the card rather than rejecting outright.
func (h *Handler) requestPermission(ctx context.Context, source, permissionID string, program *ast.Program) (*ast.Program, error) {
	for {
		prompt := source + " wants to run: " + h.formatter.ConfirmationProse(h.locale, program)
		choice, err := h.caps.AskChoices(ctx, prompt, permissionLabels)
		if err != nil {
			return nil, err
		}

		switch choice {
		case permYesOnce, permAlwaysAnyone, permAlwaysPrincipal:
			return program, nil

		case permNo:
			// An explicit "No" is ordinary refusal, not a cancellation: the
			// contract is the granted program, or nil on refusal.
			return nil, nil

		case permOnlyIf:
			filter, err := h.buildFilter(ctx)
			if err != nil {
				return nil, err
			}
			candidate := program.Clone()
			for _, stmt := range candidate.Statements {
				stmt.Filter = mergeFilter(stmt.Filter, filter)
			}
			prose := h.formatter.ConfirmationProse(h.locale, candidate)
			answer, err := h.caps.Ask(ctx, dialogue.CategoryYesNo, "Install this permission rule: "+prose+"?")
			if err != nil {
				return nil, err
			}
			yes, err := answerIsYes(answer)
			if err != nil {
				return nil, err
			}
			if yes {
				return candidate, nil
			}
			// "no" here loops back to the consent card, not a rejection.
			continue
		}
	}
}

func mergeFilter(base, extra *ast.Filter) *ast.Filter {
	if extra == nil {
		return base
	}
	if base == nil {
		return extra
	}
	base.Clauses = append(base.Clauses, extra.Clauses...)
	return base
}

// handlePolicyRequest drives an incoming `['policy', source, permissionId]`
// token through the consent card and reports the outcome; it never touches
// h.current, since a policy request is independent of whatever program the
// handler may otherwise be mid-dialogue with.
func (h *Handler) handlePolicyRequest(ctx context.Context) (*dialogue.ReplyResult, error) {
	tokens := h.pendingTokens
	entities := h.pendingEntities
	h.pendingTokens = nil
	h.pendingEntities = nil

	if len(tokens) < 2 {
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ParseError(h.locale)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
	source := tokens[1]
	permissionID := ""
	if len(tokens) >= 3 {
		permissionID = tokens[2]
	}
	program, _ := entities["program"].(*ast.Program)
	if program == nil {
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ParseError(h.locale)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}

	granted, err := h.requestPermission(ctx, source, permissionID, program)
	if err != nil {
		// A genuine cancellation (e.g. special:nevermind mid-card)
		// propagates so the loop unwinds and resets every handler.
		if dialogue.IsCancellation(err) {
			return nil, err
		}
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.LoopError(h.locale, err)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
	if granted == nil {
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: "Permission denied."}},
			Expecting: dialogue.CategoryNone,
		}, nil
	}

	return &dialogue.ReplyResult{
		Messages: []dialogue.ReplyMessage{dialogue.TextMessage{
			Text: "Permission rule installed: " + h.formatter.ConfirmationProse(h.locale, granted),
		}},
		Expecting: dialogue.CategoryNone,
	}, nil
}

// runPermission is the GetReply dispatch target for stagePermission; the
// permission card itself runs synchronously from requestPermission, so this
// is only reached if a turn boundary lands mid-flow unexpectedly.
func (h *Handler) runPermission(ctx context.Context) (*dialogue.ReplyResult, error) {
	h.stage = stageIdle
	return &dialogue.ReplyResult{
		Messages:  []dialogue.ReplyMessage{h.formatter.Nevermind(h.locale)},
		Expecting: dialogue.CategoryNone,
	}, nil
}
