// Package dialogue holds the data model shared by every other component of
// the agent: the tagged UserInput/ReplyMessage unions, the Handler
// interface every dialogue handler implements, and the Capabilities
// surface a handler borrows to run sub-dialogues.
//
// The tagged-union pattern (a private marker method plus type-tagged JSON
// wrappers) gives each concrete message/input type its own struct while
// still letting callers switch over a common interface.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/dialogia/internal/ast"
)

// ValueCategory is the closed enumeration used to constrain answers.
type ValueCategory string

const (
	CategoryYesNo        ValueCategory = "yesno"
	CategoryChoice       ValueCategory = "choice"
	CategoryCommand      ValueCategory = "command"
	CategoryNumber       ValueCategory = "number"
	CategoryLocation     ValueCategory = "location"
	CategoryTime         ValueCategory = "time"
	CategoryDate         ValueCategory = "date"
	CategoryRawString    ValueCategory = "raw_string"
	CategoryPassword     ValueCategory = "password"
	CategoryPhoneNumber  ValueCategory = "phone_number"
	CategoryEmailAddress ValueCategory = "email_address"
	CategoryContact      ValueCategory = "contact"
	CategoryGeneric      ValueCategory = "generic"
	CategoryNone         ValueCategory = "" // ask special null
)

// AskSpecialKind is the closed set of `kind`s an AskSpecial reply may carry.
type AskSpecialKind string

const (
	SpecialYesNo         AskSpecialKind = "yesno"
	SpecialChoice        AskSpecialKind = "choice"
	SpecialCommand       AskSpecialKind = "command"
	SpecialGeneric       AskSpecialKind = "generic"
	SpecialRawString     AskSpecialKind = "raw_string"
	SpecialPassword      AskSpecialKind = "password"
	SpecialNumber        AskSpecialKind = "number"
	SpecialLocation      AskSpecialKind = "location"
	SpecialPhoneNumber   AskSpecialKind = "phone_number"
	SpecialEmailAddress  AskSpecialKind = "email_address"
	SpecialNull          AskSpecialKind = "null"
)

// PlatformData carries caller-supplied context that travels with every
// UserInput: contacts known to the device, locale, and speaker identity.
type PlatformData struct {
	Contacts []ast.Contact     `json:"contacts,omitempty"`
	Locale   string            `json:"locale,omitempty"`
	SpeakerID string           `json:"speaker_id,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// --- UserInput tagged union ---

// UserInput is the marker interface for the three shapes a turn can arrive
// in: a raw utterance, UI-parsed tokens, or a pre-typed program.
type UserInput interface {
	isUserInput()
	// Platform returns the optional platform data carried with this input.
	Platform() *PlatformData
}

// CommandInput is a free-form utterance routed through NLU.
type CommandInput struct {
	Utterance string
	Data      *PlatformData
}

func (CommandInput) isUserInput()              {}
func (c CommandInput) Platform() *PlatformData { return c.Data }

// ParsedInput is a UI-produced bookkeeping token array plus extracted
// entities, e.g. `['bookkeeping','choice',2]`.
type ParsedInput struct {
	Code     []string
	Entities map[string]any
	Data     *PlatformData
}

func (ParsedInput) isUserInput()              {}
func (p ParsedInput) Platform() *PlatformData { return p.Data }

// ProgramInput is a pre-typed program, e.g. produced by a skill that
// already knows exactly what it wants to run.
type ProgramInput struct {
	Program *ast.Program
	Data    *PlatformData
}

func (ProgramInput) isUserInput()              {}
func (p ProgramInput) Platform() *PlatformData { return p.Data }

// --- ReplyMessage tagged union ---

// ReplyMessage is the marker interface for every outgoing message shape.
type ReplyMessage interface {
	isReplyMessage()
}

type TextMessage struct{ Text string }

func (TextMessage) isReplyMessage() {}

type PictureMessage struct{ URL string }

func (PictureMessage) isReplyMessage() {}

// RDLMessage is a "rich document link" card.
type RDLMessage struct {
	DisplayTitle string
	WebCallback  string
	PictureURL   string `json:"picture_url,omitempty"`
}

func (RDLMessage) isReplyMessage() {}

type ButtonMessage struct {
	Title string
	JSON  string
}

func (ButtonMessage) isReplyMessage() {}

type LinkMessage struct {
	Title string
	URL   string
}

func (LinkMessage) isReplyMessage() {}

type ChoiceMessage struct {
	Index int
	Title string
}

func (ChoiceMessage) isReplyMessage() {}

// AskSpecialMessage is the trailing marker present in every agent reply
//.
type AskSpecialMessage struct{ Kind AskSpecialKind }

func (AskSpecialMessage) isReplyMessage() {}

// --- Type-tagged JSON serialization, grounded on message.MarshalParts ---

type replyType string

const (
	replyText   replyType = "text"
	replyPic    replyType = "picture"
	replyRDL    replyType = "rdl"
	replyButton replyType = "button"
	replyLink   replyType = "link"
	replyChoice replyType = "choice"
	replyAsk    replyType = "ask_special"
)

type replyWrapper struct {
	Type replyType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalReplyMessages serializes a slice of ReplyMessage to type-tagged
// JSON, for session persistence and for the debug dump.
func MarshalReplyMessages(msgs []ReplyMessage) ([]byte, error) {
	wrappers := make([]replyWrapper, 0, len(msgs))
	for _, m := range msgs {
		var t replyType
		switch m.(type) {
		case TextMessage:
			t = replyText
		case PictureMessage:
			t = replyPic
		case RDLMessage:
			t = replyRDL
		case ButtonMessage:
			t = replyButton
		case LinkMessage:
			t = replyLink
		case ChoiceMessage:
			t = replyChoice
		case AskSpecialMessage:
			t = replyAsk
		default:
			return nil, fmt.Errorf("unknown reply message type: %T", m)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal %s reply: %w", t, err)
		}
		wrappers = append(wrappers, replyWrapper{Type: t, Data: data})
	}
	return json.Marshal(wrappers)
}

// --- Analysis / Reply / Queue types ---

// AnalysisType is the closed enum of CommandAnalysisResult.type.
type AnalysisType string

const (
	AnalysisStop                    AnalysisType = "stop"
	AnalysisDebug                   AnalysisType = "debug"
	AnalysisConfidentCommand        AnalysisType = "confident_in_domain_command"
	AnalysisNonConfidentCommand     AnalysisType = "nonconfident_in_domain_command"
	AnalysisConfidentFollowup       AnalysisType = "confident_in_domain_followup"
	AnalysisNonConfidentFollowup    AnalysisType = "nonconfident_in_domain_followup"
	AnalysisOutOfDomain             AnalysisType = "out_of_domain_command"
)

// confidenceRank orders AnalysisType by confidence tier, high to low. STOP/DEBUG
// are handled separately and never compared by rank.
var confidenceRank = map[AnalysisType]int{
	AnalysisConfidentCommand:     3,
	AnalysisConfidentFollowup:    3,
	AnalysisNonConfidentCommand:  2,
	AnalysisNonConfidentFollowup: 2,
	AnalysisOutOfDomain:          1,
}

// Rank returns the confidence tier for comparison. Unknown types rank
// below OUT_OF_DOMAIN so the arbiter never selects them.
func (t AnalysisType) Rank() int {
	return confidenceRank[t]
}

// IsFollowup reports whether this analysis type may only be accepted from
// the current handler.
func (t AnalysisType) IsFollowup() bool {
	return t == AnalysisConfidentFollowup || t == AnalysisNonConfidentFollowup
}

// CommandAnalysisResult is the pure, side-effect-free classification a
// handler's analyzeCommand returns for a turn.
type CommandAnalysisResult struct {
	Type       AnalysisType
	Utterance  string
	UserTarget string
}

// ReplyResult is what getReply/initialize produce: the messages to emit,
// what kind of answer is now expected, and whether the session should end.
type ReplyResult struct {
	Messages   []ReplyMessage
	Expecting  ValueCategory
	End        bool
	Context    string // for log
	AgentTarget string // for log
}

// Handler is the uniform contract every dialogue handler implements.
type Handler interface {
	Initialize(ctx context.Context, prevState json.RawMessage, showWelcome bool) (*ReplyResult, error)
	AnalyzeCommand(ctx context.Context, input UserInput) (CommandAnalysisResult, error)
	GetReply(ctx context.Context, analysis CommandAnalysisResult) (*ReplyResult, error)
	GetState() (json.RawMessage, error)
	Reset()

	UniqueID() string
	Priority() int
	Icon() string
}

// --- QueueItem tagged union ---

type QueueItem interface {
	isQueueItem()
}

type UserInputItem struct{ Input UserInput }

func (UserInputItem) isQueueItem() {}

type NotificationItem struct {
	AppID      string
	AppName    string
	OutputType string
	OutputValue map[string]any
}

func (NotificationItem) isQueueItem() {}

type ErrorItem struct {
	AppID   string
	AppName string
	Err     error
}

func (ErrorItem) isQueueItem() {}

// --- Capabilities: the narrow surface a handler borrows to run sub-dialogues ---

// Capabilities is passed to a handler at construction time so it can invoke
// the sub-dialogue primitives without owning the loop. It is a
// "borrowed reference" — handlers never hold the loop itself, avoiding the
// ownership cycle the design notes call out.
type Capabilities interface {
	Ask(ctx context.Context, category ValueCategory, prompt string) (UserInput, error)
	AskChoices(ctx context.Context, prompt string, choices []string) (int, error)
	AskQuestion(ctx context.Context, skillID string, category ValueCategory, prompt string) (UserInput, error)
	InteractiveConfigure(ctx context.Context, kind string) error
	AskForPermission(ctx context.Context, source, permissionID string, program *ast.Program) (*ast.Program, error)
	LookupContact(ctx context.Context, category, name string) ([]ast.Contact, error)
	LookupLocation(ctx context.Context, key string, previous *ast.Location) (ast.Location, error)
	ResolveUserContext(ctx context.Context, varName string) (any, error)
}

// CancellationError is the single signal used to abort a sub-dialogue
//: "ECANCELLED". It unwinds to the outer loop where it triggers a
// session reset.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "ECANCELLED"
	}
	return "ECANCELLED: " + e.Reason
}

// IsCancellation reports whether err is (or wraps) a CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}
