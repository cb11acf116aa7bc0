package program

import (
	"context"
	"fmt"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/dialogue"
)

// ChoicesPerPage bounds a disambiguation page.
const ChoicesPerPage = 5

// runSlotFilling drives the core path: disambiguate any invocation missing a
// resolved device, then fill slots in declared order, then move to
// confirmation once both passes are clean.
func (h *Handler) runSlotFilling(ctx context.Context) (*dialogue.ReplyResult, error) {
	if h.current == nil {
		h.stage = stageIdle
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ParseError(h.locale)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}

	for _, inv := range h.current.Invocations() {
		if inv.DeviceID != "" || h.devices == nil {
			continue
		}
		resolved, err := h.disambiguateDevice(ctx, inv)
		if err != nil {
			return h.abortWith(err)
		}
		if resolved == "" {
			// user said nevermind mid-disambiguation
			return h.abortWith(&dialogue.CancellationError{Reason: "nevermind"})
		}
		inv.DeviceID = resolved
	}

	for {
		slot := h.current.FirstUnfilledSlot()
		if slot == nil {
			break
		}
		value, err := h.askSlot(ctx, slot)
		if err != nil {
			return h.abortWith(err)
		}
		slot.Value = value
		slot.Filled = true
	}

	h.stage = stageConfirming
	return h.runConfirmation(ctx)
}

// disambiguateDevice asks the user to pick among candidate instances of
// inv.Class, paginating at ChoicesPerPage and always offering "None of the
// above" and, when truncated, "More…".
func (h *Handler) disambiguateDevice(ctx context.Context, inv *ast.Invocation) (string, error) {
	candidates, err := h.devices.FindDevices(ctx, inv.Class)
	if err != nil {
		return "", fmt.Errorf("program: find devices: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("program: no device of class %s is configured", inv.Class)
	}
	if len(candidates) == 1 {
		return candidates[0].ID, nil
	}

	offset := 0
	for {
		page := candidates[offset:min(offset+ChoicesPerPage, len(candidates))]
		labels := make([]string, 0, len(page)+2)
		for _, c := range page {
			labels = append(labels, c.Name)
		}
		hasMore := offset+ChoicesPerPage < len(candidates)
		if hasMore {
			labels = append(labels, "More…")
		}
		labels = append(labels, "None of the above")

		choice, err := h.caps.AskChoices(ctx, fmt.Sprintf("Which %s do you mean?", inv.Class), labels)
		if err != nil {
			return "", err
		}
		switch {
		case choice < len(page):
			return page[choice].ID, nil
		case hasMore && choice == len(page):
			offset += ChoicesPerPage
			continue
		default:
			return "", nil
		}
	}
}

// askSlot prompts for a single slot value using the capability matching its
// category, routing contact/location slots through their dedicated lookups
// rather than a bare raw-string prompt.
func (h *Handler) askSlot(ctx context.Context, slot *ast.Slot) (any, error) {
	category := categoryForSlotType(slot.Type)
	prompt := fmt.Sprintf("What should %s be?", slot.Name)

	switch category {
	case dialogue.CategoryContact:
		contacts, err := h.caps.LookupContact(ctx, slot.Type, "")
		if err == nil && len(contacts) > 0 {
			return contacts[0], nil
		}
	case dialogue.CategoryLocation:
		loc, err := h.caps.LookupLocation(ctx, slot.Name, nil)
		if err == nil {
			return loc, nil
		}
	}

	input, err := h.caps.Ask(ctx, category, prompt)
	if err != nil {
		return nil, err
	}
	return extractValue(input)
}

// extractValue pulls the scalar answer out of whichever UserInput shape the
// Ask primitive's underlying awaitAnswer produced.
func extractValue(input dialogue.UserInput) (any, error) {
	switch in := input.(type) {
	case dialogue.CommandInput:
		return in.Utterance, nil
	case dialogue.ParsedInput:
		if v, ok := in.Entities["value"]; ok {
			return v, nil
		}
		return in.Code, nil
	default:
		return nil, fmt.Errorf("program: unexpected answer shape %T", input)
	}
}

// runConfirmation renders ConfirmationProse, asks yes/no, and on "yes" moves
// to execution; on "no" it cancels the whole program back to idle.
func (h *Handler) runConfirmation(ctx context.Context) (*dialogue.ReplyResult, error) {
	prose := h.formatter.ConfirmationProse(h.locale, h.current)
	answer, err := h.caps.Ask(ctx, dialogue.CategoryYesNo, prose)
	if err != nil {
		if dialogue.IsCancellation(err) {
			return h.abortWith(err)
		}
		return nil, err
	}
	yes, err := answerIsYes(answer)
	if err != nil {
		return nil, err
	}
	if !yes {
		h.stage = stageIdle
		h.current = nil
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.Nevermind(h.locale)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
	if h.current.IsRemote() {
		return h.runRemoteDispatch(ctx)
	}
	return h.runExecution(ctx)
}

func answerIsYes(input dialogue.UserInput) (bool, error) {
	parsed, ok := input.(dialogue.ParsedInput)
	if !ok || len(parsed.Code) < 2 {
		return false, fmt.Errorf("program: expected yes/no bookkeeping, got %T", input)
	}
	return parsed.Code[1] == "yes", nil
}

// runExecution hands the confirmed program to the executor and renders each
// streamed result as it arrives, per result, in order.
func (h *Handler) runExecution(ctx context.Context) (*dialogue.ReplyResult, error) {
	events, err := h.executor.Execute(ctx, h.current)
	if err != nil {
		h.stage = stageIdle
		h.current = nil
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ExecutorError(h.locale, err)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}

	var messages []dialogue.ReplyMessage
	for ev := range events {
		if ev.Err != nil {
			messages = append(messages, h.formatter.ExecutorError(h.locale, ev.Err))
			continue
		}
		messages = append(messages, h.formatter.RenderResult(ctx, h.locale, ev))
	}
	if len(messages) == 0 {
		messages = append(messages, dialogue.TextMessage{Text: "Done."})
	}

	h.stage = stageIdle
	h.current = nil
	return &dialogue.ReplyResult{Messages: messages, Expecting: dialogue.CategoryNone}, nil
}

// abortWith resets the handler to idle and either propagates a
// cancellation (so the loop can unwind and reset every handler) or
// renders a collaborator error as a terminal reply.
func (h *Handler) abortWith(err error) (*dialogue.ReplyResult, error) {
	h.stage = stageIdle
	h.current = nil
	if dialogue.IsCancellation(err) {
		return nil, err
	}
	return &dialogue.ReplyResult{
		Messages:  []dialogue.ReplyMessage{h.formatter.LoopError(h.locale, err)},
		Expecting: dialogue.CategoryNone,
	}, nil
}
