// Package dialogia is the public facade over the conversational agent: it
// wires a handler set, a delegate, a formatter, and a preferences store into
// a running internal/loop.Loop and exposes only the surface a host
// application needs to drive it.
package dialogia

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/delegate"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/formatter"
	"github.com/mark3labs/dialogia/internal/logging"
	"github.com/mark3labs/dialogia/internal/loop"
	"github.com/mark3labs/dialogia/internal/prefs"
	"github.com/mark3labs/dialogia/internal/queue"
)

// Agent is a running conversational dialogue agent.
type Agent struct {
	loop *loop.Loop
}

// Config collects everything New needs to assemble an Agent. Handlers
// should be supplied in priority order; New does not sort them. Formatter
// and InputQueue are built ahead of time by NewFormatter/NewCapabilities
// because handlers need both at construction time, before an Agent exists
// to hand them over.
type Config struct {
	Handlers  []dialogue.Handler
	Delegate  delegate.Delegate
	Prefs     prefs.Store
	Logger    logging.Logger
	Locale    string
	Formatter *formatter.Formatter

	// InputQueue is the same queue.Queue instance NewCapabilities handed
	// to the subdialogue.Runtime bound into Handlers. New hands it to the
	// loop rather than building its own, so both sides of a parked
	// sub-dialogue Ask/AskChoices pop from the one queue the loop feeds.
	InputQueue *queue.Queue
}

// NewCapabilities builds the queue a deployment must share between the
// handlers it constructs (via subdialogue.New) and the Config it later
// passes to New: handlers need their dialogue.Capabilities wired before a
// Loop exists to hand them a queue, so the composition root creates the
// queue itself and threads it through both.
func NewCapabilities() *queue.Queue {
	return queue.New("user-input")
}

// NewFormatter builds the shared Formatter a deployment hands both to its
// handlers (so their confirmation prose and execution-result rendering
// match what the loop itself renders) and to Config.Formatter. preview may
// be nil, which degrades RDL replies to plain links; locales registers
// additional locale tables beyond the built-in English default.
func NewFormatter(store prefs.Store, preview *collab.WebPreviewFetcher, locales map[string]formatter.Locale) *formatter.Formatter {
	f := formatter.New(store, preview)
	for code, l := range locales {
		f.RegisterLocale(code, l)
	}
	return f
}

// New assembles an Agent from cfg. cfg.InputQueue must be the same queue
// instance used to build cfg.Handlers' Capabilities (see NewCapabilities),
// and cfg.Formatter should be the instance handlers were built with (see
// NewFormatter).
func New(cfg Config) *Agent {
	l := loop.New(cfg.Handlers, cfg.Delegate, cfg.Formatter, cfg.Logger, cfg.Prefs, cfg.Locale, cfg.InputQueue)
	return &Agent{loop: l}
}

// Start begins the agent's outer loop. initialState, if non-empty, resumes a
// previously persisted session (see GetState); showWelcome controls whether
// each handler's Initialize is given the chance to emit a welcome message.
func (a *Agent) Start(ctx context.Context, showWelcome bool, initialState json.RawMessage) error {
	return a.loop.Start(ctx, showWelcome, initialState)
}

// HandleCommand submits a turn and blocks until the loop has fully processed
// it — including any multi-turn sub-dialogue it triggers — or ctx is done.
func (a *Agent) HandleCommand(ctx context.Context, input dialogue.UserInput) error {
	return a.loop.HandleCommand(ctx, input)
}

// PushCommand submits a turn without waiting for it to be processed, routing
// it to whichever queue the loop is currently draining.
func (a *Agent) PushCommand(input dialogue.UserInput) {
	a.loop.PushCommand(input)
}

// DispatchNotify delivers an out-of-band {outputType, outputValue} result
// from app/device appID (display name appName) through the notify queue.
func (a *Agent) DispatchNotify(appID, appName, outputType string, outputValue map[string]any) {
	a.loop.DispatchNotify(appID, appName, outputType, outputValue)
}

// DispatchNotifyError delivers an out-of-band failure the same way.
func (a *Agent) DispatchNotifyError(appID, appName string, err error) {
	a.loop.DispatchNotifyError(appID, appName, err)
}

// Reset cancels any sub-dialogue in flight and returns every handler (and
// the session) to its initial state.
func (a *Agent) Reset(ctx context.Context) error {
	return a.loop.Reset(ctx)
}

// Stop shuts the agent down, unblocking any parked queue waiters and
// awaiting the outer loop's goroutine.
func (a *Agent) Stop() {
	a.loop.Stop()
}

// GetState returns a JSON snapshot suitable for a later Start call's
// initialState, preserving every handler's state across the round trip.
func (a *Agent) GetState() (json.RawMessage, error) {
	return a.loop.GetState()
}
