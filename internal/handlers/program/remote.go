package program

import (
	"context"

	"github.com/google/uuid"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/dialogue"
)

// builtinRemoteClass names the synthetic send/receive pairing class the
// local monitor listens on, mirroring thingengine's builtin remote device.
const builtinRemoteClass = "org.thingpedia.builtin.thingengine.remote"

// remotePair is the result of splitting a remote-targeted program into the
// local monitor that waits for results and the program actually installed
// on the target principal.
type remotePair struct {
	Local     *ast.Program
	Remote    *ast.Program
	ProgramID string
}

// splitRemote composes the two programs for a program whose Principal names
// an executor distinct from self: a local "receive" monitor keyed by a fresh
// program id, and a copy of the original program, unchanged, to be
// installed on the target. No "send" invocation is added to the remote
// copy, so nothing in it refers to the monitor's program id.
func splitRemote(program *ast.Program) remotePair {
	id := uuid.NewString()

	receive := &ast.Invocation{
		Kind:     ast.KindTrigger,
		Class:    builtinRemoteClass,
		Function: "receive",
		Slots: []*ast.Slot{
			{Name: "principal", Type: "String", Value: program.Principal, Filled: true},
			{Name: "programId", Type: "String", Value: id, Filled: true},
		},
	}
	local := &ast.Program{
		Statements: []*ast.Statement{
			{Trigger: receive, Terminal: "notify"},
		},
	}

	remote := program.Clone()
	return remotePair{Local: local, Remote: remote, ProgramID: id}
}

// runRemoteDispatch installs the local monitor and hands the remote program
// off to the executor for delivery to its target principal, acknowledging
// without waiting for execution to finish — results arrive later as
// notifications through the local monitor.
func (h *Handler) runRemoteDispatch(ctx context.Context) (*dialogue.ReplyResult, error) {
	pair := splitRemote(h.current)

	if _, err := h.executor.Execute(ctx, pair.Local); err != nil {
		h.stage = stageIdle
		h.current = nil
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ExecutorError(h.locale, err)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
	if _, err := h.executor.Execute(ctx, pair.Remote); err != nil {
		h.stage = stageIdle
		h.current = nil
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ExecutorError(h.locale, err)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}

	h.stage = stageIdle
	h.current = nil
	return &dialogue.ReplyResult{
		Messages: []dialogue.ReplyMessage{dialogue.TextMessage{
			Text: "Sent to " + pair.Remote.Principal + ". I'll let you know when it's done.",
		}},
		Expecting: dialogue.CategoryNone,
	}, nil
}
