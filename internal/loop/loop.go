// Package loop implements the top-level dialogue driver: session
// start, pop-next-item, routing of user turns through the arbiter,
// out-of-band notification rendering, per-turn error recovery, session
// reset, and graceful stop.
//
// Structurally grounded on a sync.Mutex-guarded busy flag, a
// context.CancelFunc for the in-flight step, and a sync.WaitGroup for
// graceful Stop(), adapted from a single prompt-string queue to the
// two-FIFO intent queue and from a tea.Program-style event sink to the
// Delegate abstraction.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/dialogia/internal/arbiter"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/delegate"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/formatter"
	"github.com/mark3labs/dialogia/internal/logging"
	"github.com/mark3labs/dialogia/internal/prefs"
	"github.com/mark3labs/dialogia/internal/queue"
	"github.com/mark3labs/dialogia/internal/session"
)

// Loop drives one session. It owns the two Intent Queue FIFOs and the set
// of registered handlers, and is the only writer of session-scope state
// (currentHandler, expecting); handler-owned state is never touched
// directly.
type Loop struct {
	handlers  []dialogue.Handler
	delegate  delegate.Delegate
	formatter *formatter.Formatter
	log       logging.Logger
	prefs     prefs.Store
	locale    string

	inputQ  *queue.Queue // nextCommand: user-input only, drained mid-dialogue
	notifyQ *queue.Queue // nextQueueItem: the outer loop's queue

	mu      sync.Mutex
	state   *session.State
	stopped bool

	// readyGate is closed whenever the loop is idle (parked waiting on
	// notifyQ.Pop, or about to be) and reopened for the duration of one
	// dispatch. Reset snapshots it before triggering cancellation so it
	// can wait for the in-flight dispatch -- including any
	// handleCancellation it runs -- to finish before reporting done.
	readyGate chan struct{}
	// turnGate is closed whenever one full handleUserInput/handleAPICall
	// pass completes, then immediately re-armed; HandleCommand waits on a
	// snapshot of it to give callers a blocking, promise-like completion
	// signal for a submitted turn.
	turnGate chan struct{}

	stepCancel context.CancelFunc
	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New constructs a Loop over inputQ, the same queue.Queue instance the
// composition root bound handlers' Capabilities (the subdialogue.Runtime)
// to. The queue is supplied rather than created here because handlers need
// it at construction time, before a Loop exists to hand it to them; passing
// it in keeps loop and subdialogue from having to import one another.
func New(handlers []dialogue.Handler, d delegate.Delegate, f *formatter.Formatter, log logging.Logger, store prefs.Store, locale string, inputQ *queue.Queue) *Loop {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Loop{
		handlers:   handlers,
		delegate:   d,
		formatter:  f,
		log:        log,
		prefs:      store,
		locale:     locale,
		inputQ:     inputQ,
		notifyQ:    queue.New("notify"),
		state:      session.New(),
		readyGate:  closedChan(),
		turnGate:   make(chan struct{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		stepCancel: func() {},
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Start runs handler initialization, emits the best welcome ReplyResult
// (if any), and launches the background loop goroutine.
func (l *Loop) Start(ctx context.Context, showWelcome bool, initialState json.RawMessage) error {
	if initialState != nil {
		s, err := loadState(initialState)
		if err != nil {
			return fmt.Errorf("loop: start: %w", err)
		}
		l.mu.Lock()
		l.state = s
		l.mu.Unlock()
	}

	var best *dialogue.ReplyResult
	for _, h := range l.handlers {
		prev := l.state.HandlerState[h.UniqueID()]
		result, err := h.Initialize(ctx, prev, showWelcome)
		if err != nil {
			l.log.Error("handler initialize failed", "handler", h.UniqueID(), "err", err)
			continue
		}
		if result != nil && best == nil {
			best = result
		}
	}
	if best != nil {
		if err := delegate.Dispatch(l.delegate, "", best); err != nil {
			return fmt.Errorf("loop: start: dispatch welcome: %w", err)
		}
	}

	l.wg.Add(1)
	go l.run()
	return nil
}

func loadState(raw json.RawMessage) (*session.State, error) {
	var s session.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal initial state: %w", err)
	}
	if s.HandlerState == nil {
		s.HandlerState = make(session.HandlerState)
	}
	return &s, nil
}

// run is the background goroutine implementing the outer loop: pop the
// next queue item, dispatch it, repeat until stopped.
func (l *Loop) run() {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		item, err := l.notifyQ.Pop(l.rootCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			l.log.Error("notify queue pop failed", "err", err)
			continue
		}

		l.mu.Lock()
		l.readyGate = make(chan struct{})
		l.mu.Unlock()

		l.dispatch(item)
		l.finishTurn()

		l.mu.Lock()
		close(l.readyGate)
		l.mu.Unlock()
	}
}

// finishTurn closes the current turnGate and re-arms a fresh one, so a
// HandleCommand call that snapshotted the old gate unblocks.
func (l *Loop) finishTurn() {
	l.mu.Lock()
	close(l.turnGate)
	l.turnGate = make(chan struct{})
	l.mu.Unlock()
}

func (l *Loop) dispatch(item dialogue.QueueItem) {
	stepCtx, cancel := context.WithCancel(l.rootCtx)
	l.mu.Lock()
	l.stepCancel = cancel
	l.mu.Unlock()
	defer cancel()

	switch it := item.(type) {
	case dialogue.UserInputItem:
		l.handleUserInput(stepCtx, it.Input)
	case dialogue.NotificationItem:
		l.handleNotification(stepCtx, it)
	case dialogue.ErrorItem:
		l.handleNotifyError(stepCtx, it)
	}
}

// handleUserInput implements the inner turn loop: analyze across every
// handler, dispatch STOP/DEBUG directly, otherwise invoke the arbiter's
// winner and keep looping on user-input items (not notify) while
// expecting != null.
func (l *Loop) handleUserInput(ctx context.Context, input dialogue.UserInput) {
	for {
		analysis, winner, err := l.analyze(ctx, input)
		if dialogue.IsCancellation(err) {
			l.handleCancellation()
			return
		}
		if err != nil {
			l.log.Error("analyze failed", "err", err)
			l.emitUnexpected(l.formatter.LoopError(l.locale, err))
			return
		}

		switch analysis.Type {
		case dialogue.AnalysisStop:
			l.handleCancellation()
			return
		case dialogue.AnalysisDebug:
			l.emitDebugDump()
			return
		}

		if winner == nil {
			l.emit(&dialogue.ReplyResult{
				Messages:  []dialogue.ReplyMessage{l.formatter.Didnt(l.locale)},
				Expecting: dialogue.CategoryNone,
			}, "")
			return
		}

		result, err := winner.GetReply(ctx, analysis)
		if dialogue.IsCancellation(err) {
			l.handleCancellation()
			return
		}
		if err != nil {
			l.log.Error("getReply failed", "handler", winner.UniqueID(), "err", err)
			l.emitUnexpected(l.formatter.LoopError(l.locale, err))
			return
		}

		l.mu.Lock()
		l.state.CurrentHandler = winner.UniqueID()
		l.state.Icon = winner.Icon()
		l.state.Expecting = result.Expecting
		l.state.Touch()
		l.mu.Unlock()

		l.emit(result, winner.Icon())

		if result.End || result.Expecting == dialogue.CategoryNone {
			return
		}

		// Continue on user-input items only: no notification may
		// interleave here.
		next, err := l.inputQ.Pop(ctx)
		if err != nil {
			if dialogue.IsCancellation(err) {
				l.handleCancellation()
			}
			return
		}
		ui, ok := next.(dialogue.UserInputItem)
		if !ok {
			continue
		}
		input = ui.Input
	}
}

// analyze runs analyzeCommand across every handler concurrently and lets
// the arbiter pick a winner. Handlers never share mutable state
// with each other during AnalyzeCommand (each owns only its own fields), so
// running them on an errgroup is safe and keeps one slow handler (e.g. the
// FAQ handler's retrieval lookup) from holding up every other handler's
// verdict.
func (l *Loop) analyze(ctx context.Context, input dialogue.UserInput) (dialogue.CommandAnalysisResult, dialogue.Handler, error) {
	l.mu.Lock()
	cur := l.state.CurrentHandler
	l.mu.Unlock()

	analyses := make([]dialogue.CommandAnalysisResult, len(l.handlers))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range l.handlers {
		g.Go(func() error {
			a, err := h.AnalyzeCommand(gctx, input)
			if err != nil {
				return err
			}
			analyses[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dialogue.CommandAnalysisResult{}, nil, err
	}

	var candidates []arbiter.Candidate
	var topLevel dialogue.CommandAnalysisResult
	for i, h := range l.handlers {
		a := analyses[i]
		candidates = append(candidates, arbiter.Candidate{Handler: h, Analysis: a})
		if a.Type == dialogue.AnalysisStop || a.Type == dialogue.AnalysisDebug {
			topLevel = a
		}
	}
	if topLevel.Type != "" {
		return topLevel, nil, nil
	}

	decision := arbiter.Select(candidates, cur)
	if decision.Selected == nil {
		return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain}, nil, nil
	}
	return decision.Selected.Analysis, decision.Selected.Handler, nil
}

func (l *Loop) handleNotification(ctx context.Context, it dialogue.NotificationItem) {
	msg := l.formatter.RenderResult(ctx, l.locale, collab.ExecutionEvent{
		OutputType:  it.OutputType,
		OutputValue: it.OutputValue,
	})
	l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{msg}}, "")
}

func (l *Loop) handleNotifyError(_ context.Context, it dialogue.ErrorItem) {
	l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{l.formatter.APIError(l.locale, it.Err)}}, "")
}

func (l *Loop) handleCancellation() {
	for _, h := range l.handlers {
		h.Reset()
	}
	l.mu.Lock()
	l.state.Reset()
	l.mu.Unlock()
	l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{l.formatter.Nevermind(l.locale)}}, "")
}

func (l *Loop) emitUnexpected(msg dialogue.ReplyMessage) {
	l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{msg}}, "")
}

// emitDebugDump renders the session's "/debug" view: a one-line summary of
// the session-scope fields, pulled out of the marshaled state with gjson
// rather than re-walking session.State's struct fields, followed by the
// full indented JSON.
func (l *Loop) emitDebugDump() {
	l.mu.Lock()
	raw, err := json.MarshalIndent(l.state, "", "  ")
	l.mu.Unlock()
	if err != nil {
		l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{dialogue.TextMessage{Text: fmt.Sprintf("debug: %v", err)}}}, "")
		return
	}
	summary := gjson.GetBytes(raw, "{current_handler,expecting,raw,choices.#}")
	text := fmt.Sprintf("%s\n%s", summary.Raw, string(raw))
	l.emit(&dialogue.ReplyResult{Messages: []dialogue.ReplyMessage{dialogue.TextMessage{Text: text}}}, "")
}

func (l *Loop) emit(result *dialogue.ReplyResult, icon string) {
	if err := delegate.Dispatch(l.delegate, icon, result); err != nil {
		l.log.Error("dispatch failed", "err", err)
	}
}

// PushCommand is the fire-and-forget variant of HandleCommand: routes
// input to whichever queue the loop is currently draining.
func (l *Loop) PushCommand(input dialogue.UserInput) {
	l.mu.Lock()
	midDialogue := l.state.CurrentHandler != "" && l.state.Expecting != dialogue.CategoryNone
	l.mu.Unlock()
	// A sub-dialogue parked inside GetReply drains the input queue before
	// the session-scope fields above are updated for this turn.
	midDialogue = midDialogue || l.inputQ.HasWaiter()

	if midDialogue {
		l.inputQ.Push(dialogue.UserInputItem{Input: input})
		return
	}
	l.notifyQ.Push(dialogue.UserInputItem{Input: input})
}

// HandleCommand pushes input and waits for the triggered turn (or inner
// follow-up step) to finish, giving the caller a blocking completion
// signal keyed on the turnGate snapshot taken before the push can
// possibly be consumed.
func (l *Loop) HandleCommand(ctx context.Context, input dialogue.UserInput) error {
	l.mu.Lock()
	gate := l.turnGate
	l.mu.Unlock()

	l.PushCommand(input)

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchNotify pushes a rendered notification onto the notify queue.
func (l *Loop) DispatchNotify(appID, appName, outputType string, outputValue map[string]any) {
	l.notifyQ.Push(dialogue.NotificationItem{
		AppID: appID, AppName: appName, OutputType: outputType, OutputValue: outputValue,
	})
}

// DispatchNotifyError pushes an out-of-band error onto the notify queue.
func (l *Loop) DispatchNotifyError(appID, appName string, err error) {
	l.notifyQ.Push(dialogue.ErrorItem{AppID: appID, AppName: appName, Err: err})
}

// Reset cancels the in-flight step, resets every handler, clears
// session-scope state, and wakes whichever queue currently has a parked
// waiter — mirroring Stop()'s cancellation but without tearing down the
// loop goroutine. It waits for readyGate to close so it does not return
// until run() has actually finished processing the cancelled dispatch
// (handleCancellation included), not merely requested it; the gate is
// snapshotted before cancellation is triggered since run() only flips it
// once, at the end of the very dispatch Reset is interrupting.
func (l *Loop) Reset(ctx context.Context) error {
	gate := l.readyGateSnapshot()

	l.mu.Lock()
	cancel := l.stepCancel
	l.mu.Unlock()
	cancel()

	cancelErr := &dialogue.CancellationError{Reason: "reset"}
	l.inputQ.CancelWait(cancelErr)
	l.notifyQ.CancelWait(cancelErr)

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) readyGateSnapshot() chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readyGate
}

// Stop cancels the in-flight step and the root context, wakes any parked
// queue waiter, and waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel := l.stepCancel
	l.mu.Unlock()

	cancel()
	cancelErr := &dialogue.CancellationError{Reason: "stop"}
	l.inputQ.CancelWait(cancelErr)
	l.notifyQ.CancelWait(cancelErr)
	l.rootCancel()
	l.wg.Wait()
}

// GetState returns the current session-scope snapshot merged with every
// handler's own getState(), so a later Start with this blob resumes
// identically.
func (l *Loop) GetState() (json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, h := range l.handlers {
		hs, err := h.GetState()
		if err != nil {
			return nil, fmt.Errorf("loop: getState: handler %s: %w", h.UniqueID(), err)
		}
		l.state.HandlerState[h.UniqueID()] = hs
	}
	raw, err := json.Marshal(l.state)
	if err != nil {
		return nil, fmt.Errorf("loop: getState: marshal: %w", err)
	}
	return raw, nil
}
