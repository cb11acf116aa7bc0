// Package program implements the formal-program handler: the hardest
// handler in the agent, driving intent ingestion, slot filling,
// disambiguation, confirmation, execution, the rule builder, permission
// grants, and remote programs entirely through the sub-dialogue
// primitives borrowed from dialogue.Capabilities.
package program

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/formatter"
)

// stage names the handler's internal state machine position, persisted
// across turns as part of getState().
type stage string

const (
	stageIdle           stage = "idle"
	stageSlotFilling    stage = "slot_filling"
	stageDisambiguating stage = "disambiguating"
	stageConfirming     stage = "confirming"
	stageRuleBuilder    stage = "rule_builder"
	stagePermission     stage = "permission"
)

// persisted is the handler's getState()/Initialize(prevState) payload.
type persisted struct {
	Stage   stage      `json:"stage"`
	Program *ast.Program `json:"program,omitempty"`
}

// Handler implements dialogue.Handler for the formal-program flow.
type Handler struct {
	id       string
	priority int
	icon     string

	caps      dialogue.Capabilities
	nlu       collab.NLUClient
	executor  collab.Executor
	devices   collab.DeviceDiscovery
	formatter *formatter.Formatter
	locale    string

	stage   stage
	current *ast.Program
	// pending* carry whatever AnalyzeCommand determined so GetReply doesn't
	// have to re-derive it.
	pendingProgram  *ast.Program
	pendingTokens   []string
	pendingEntities map[string]any
}

// New constructs a formal-program handler. caps is the borrowed
// Capabilities reference: the handler never owns the loop.
func New(id string, priority int, icon string, caps dialogue.Capabilities, nlu collab.NLUClient, executor collab.Executor, devices collab.DeviceDiscovery, f *formatter.Formatter, locale string) *Handler {
	return &Handler{
		id: id, priority: priority, icon: icon,
		caps: caps, nlu: nlu, executor: executor, devices: devices,
		formatter: f, locale: locale,
		stage: stageIdle,
	}
}

func (h *Handler) UniqueID() string { return h.id }
func (h *Handler) Priority() int    { return h.priority }
func (h *Handler) Icon() string     { return h.icon }

func (h *Handler) Initialize(_ context.Context, prevState json.RawMessage, showWelcome bool) (*dialogue.ReplyResult, error) {
	if len(prevState) > 0 {
		var p persisted
		if err := json.Unmarshal(prevState, &p); err == nil {
			h.stage = p.Stage
			h.current = p.Program
		}
	}
	if h.stage == "" {
		h.stage = stageIdle
	}
	if !showWelcome {
		return nil, nil
	}
	return &dialogue.ReplyResult{
		Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: "Hi! What can I do for you?"}},
		Expecting: dialogue.CategoryNone,
	}, nil
}

func (h *Handler) Reset() {
	h.stage = stageIdle
	h.current = nil
	h.pendingProgram = nil
	h.pendingTokens = nil
	h.pendingEntities = nil
}

func (h *Handler) GetState() (json.RawMessage, error) {
	return json.Marshal(persisted{Stage: h.stage, Program: h.current})
}

// AnalyzeCommand classifies a turn: a
// pre-typed ProgramInput is always confident; a ParsedInput routes
// through the bookkeeping vocabulary; a CommandInput goes through NLU.
// When the handler is mid-dialogue (stage != idle), any answer is scored
// as a FOLLOWUP so the arbiter restricts it to this handler.
func (h *Handler) AnalyzeCommand(ctx context.Context, input dialogue.UserInput) (dialogue.CommandAnalysisResult, error) {
	followup := h.stage != stageIdle

	switch in := input.(type) {
	case dialogue.ProgramInput:
		h.pendingProgram = in.Program
		return result(dialogue.AnalysisConfidentCommand, "", followup), nil

	case dialogue.ParsedInput:
		if len(in.Code) >= 2 && in.Code[0] == "special" {
			switch in.Code[1] {
			case "stop":
				return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisStop}, nil
			case "debug":
				return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisDebug}, nil
			case "makerule":
				return result(dialogue.AnalysisConfidentCommand, "", false), nil
			}
		}
		if len(in.Code) >= 1 && in.Code[0] == "policy" {
			// an incoming remote-permission request always starts a fresh
			// consent card, never a followup of whatever else is in flight.
			h.pendingTokens = in.Code
			h.pendingEntities = in.Entities
			return result(dialogue.AnalysisConfidentCommand, "", false), nil
		}
		h.pendingTokens = in.Code
		return result(dialogue.AnalysisConfidentCommand, "", followup), nil

	case dialogue.CommandInput:
		program, tokens, err := h.nlu.Parse(ctx, in.Utterance, h.locale)
		if err != nil {
			return dialogue.CommandAnalysisResult{}, fmt.Errorf("program: analyze: %w", err)
		}
		if len(tokens) >= 2 && tokens[0] == "special" {
			switch tokens[1] {
			case "stop":
				return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisStop}, nil
			case "debug":
				return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisDebug}, nil
			}
		}
		h.pendingProgram = program
		h.pendingTokens = tokens
		if program == nil && len(tokens) == 0 {
			return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain, Utterance: in.Utterance}, nil
		}
		analysisType := dialogue.AnalysisConfidentCommand
		if followup {
			analysisType = dialogue.AnalysisConfidentFollowup
		}
		return dialogue.CommandAnalysisResult{Type: analysisType, Utterance: in.Utterance}, nil
	}

	return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain}, nil
}

func result(t dialogue.AnalysisType, utterance string, followup bool) dialogue.CommandAnalysisResult {
	if followup {
		switch t {
		case dialogue.AnalysisConfidentCommand:
			t = dialogue.AnalysisConfidentFollowup
		case dialogue.AnalysisNonConfidentCommand:
			t = dialogue.AnalysisNonConfidentFollowup
		}
	}
	return dialogue.CommandAnalysisResult{Type: t, Utterance: utterance}
}

// GetReply dispatches to the state machine stage selected by
// AnalyzeCommand, driving the program through slot filling,
// disambiguation, confirmation, and execution.
func (h *Handler) GetReply(ctx context.Context, analysis dialogue.CommandAnalysisResult) (*dialogue.ReplyResult, error) {
	if len(h.pendingTokens) >= 2 && h.pendingTokens[0] == "special" && h.pendingTokens[1] == "makerule" {
		h.pendingTokens = nil
		return h.startRuleBuilder(ctx)
	}

	if len(h.pendingTokens) >= 1 && h.pendingTokens[0] == "policy" {
		return h.handlePolicyRequest(ctx)
	}

	if h.pendingProgram != nil && h.stage == stageIdle {
		h.current = h.pendingProgram
		h.pendingProgram = nil
		h.stage = stageSlotFilling
	}

	switch h.stage {
	case stageSlotFilling:
		return h.runSlotFilling(ctx)
	case stageDisambiguating:
		return h.runSlotFilling(ctx) // disambiguation folds back into the same driver loop
	case stageConfirming:
		return h.runConfirmation(ctx)
	case stageRuleBuilder:
		return h.runRuleBuilder(ctx)
	case stagePermission:
		return h.runPermission(ctx)
	default:
		h.pendingTokens = nil
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{h.formatter.ParseError(h.locale)},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
}

// categoryForSlotType maps an ast.Slot.Type to the ValueCategory used to
// drive the matching ask primitive.
func categoryForSlotType(t string) dialogue.ValueCategory {
	switch strings.ToLower(t) {
	case "location":
		return dialogue.CategoryLocation
	case "contact":
		return dialogue.CategoryContact
	case "number":
		return dialogue.CategoryNumber
	case "time":
		return dialogue.CategoryTime
	case "date":
		return dialogue.CategoryDate
	case "phonenumber", "phone_number":
		return dialogue.CategoryPhoneNumber
	case "email", "emailaddress", "email_address":
		return dialogue.CategoryEmailAddress
	case "password":
		return dialogue.CategoryPassword
	default:
		return dialogue.CategoryRawString
	}
}
