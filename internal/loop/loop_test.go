package loop

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/dialogia/internal/delegate"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/formatter"
	"github.com/mark3labs/dialogia/internal/logging"
	"github.com/mark3labs/dialogia/internal/prefs"
	"github.com/mark3labs/dialogia/internal/queue"
)

// recordingDelegate captures every dispatched frame for assertions.
type recordingDelegate struct {
	mu    sync.Mutex
	texts []string
	asked []dialogue.AskSpecialKind
}

func (d *recordingDelegate) Send(text, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}
func (d *recordingDelegate) SendPicture(string, string) error            { return nil }
func (d *recordingDelegate) SendRDL(dialogue.RDLMessage, string) error   { return nil }
func (d *recordingDelegate) SendChoice(int, string, string, string) error { return nil }
func (d *recordingDelegate) SendLink(string, string) error               { return nil }
func (d *recordingDelegate) SendButton(string, string) error             { return nil }
func (d *recordingDelegate) SendAskSpecial(kind dialogue.AskSpecialKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asked = append(d.asked, kind)
	return nil
}

func (d *recordingDelegate) lastText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.texts) == 0 {
		return ""
	}
	return d.texts[len(d.texts)-1]
}

var _ delegate.Delegate = (*recordingDelegate)(nil)

// stubHandler is a minimal dialogue.Handler whose AnalyzeCommand/GetReply
// behavior is set per test. delay simulates a slow handler so concurrent
// analyze behavior is observable.
type stubHandler struct {
	id       string
	priority int
	icon     string
	delay    time.Duration

	analysis dialogue.CommandAnalysisResult
	reply    *dialogue.ReplyResult

	resetCalled int
}

func (h *stubHandler) Initialize(_ context.Context, _ json.RawMessage, _ bool) (*dialogue.ReplyResult, error) {
	return nil, nil
}

func (h *stubHandler) AnalyzeCommand(ctx context.Context, _ dialogue.UserInput) (dialogue.CommandAnalysisResult, error) {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return dialogue.CommandAnalysisResult{}, ctx.Err()
		}
	}
	return h.analysis, nil
}

func (h *stubHandler) GetReply(_ context.Context, _ dialogue.CommandAnalysisResult) (*dialogue.ReplyResult, error) {
	return h.reply, nil
}

func (h *stubHandler) GetState() (json.RawMessage, error) { return json.RawMessage(`{}`), nil }
func (h *stubHandler) Reset()                              { h.resetCalled++ }
func (h *stubHandler) UniqueID() string                    { return h.id }
func (h *stubHandler) Priority() int                       { return h.priority }
func (h *stubHandler) Icon() string                        { return h.icon }

func newTestLoop(t *testing.T, handlers []dialogue.Handler, d delegate.Delegate) *Loop {
	t.Helper()
	store := prefs.NewMemory()
	f := formatter.New(store, nil)
	inputQ := queue.New("user-input")
	l := New(handlers, d, f, logging.Discard(), store, "en", inputQ)
	if err := l.Start(context.Background(), false, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func TestHandleCommandRoutesToWinnerAndWaitsForTurn(t *testing.T) {
	d := &recordingDelegate{}
	h := &stubHandler{
		id: "main", priority: 10,
		analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisConfidentCommand},
		reply: &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: "ok"}},
			Expecting: dialogue.CategoryNone,
		},
	}
	l := newTestLoop(t, []dialogue.Handler{h}, d)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.HandleCommand(ctx, dialogue.CommandInput{Utterance: "hi"}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := d.lastText(); got != "ok" {
		t.Fatalf("expected dispatched text %q, got %q", "ok", got)
	}
}

func TestHandleCommandNoWinnerEmitsDidntUnderstand(t *testing.T) {
	d := &recordingDelegate{}
	h := &stubHandler{
		id: "main", priority: 10,
		analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain},
	}
	l := newTestLoop(t, []dialogue.Handler{h}, d)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.HandleCommand(ctx, dialogue.CommandInput{Utterance: "asdf"}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if got := d.lastText(); got != "Sorry, I didn't understand that." {
		t.Fatalf("expected didn't-understand fallback, got %q", got)
	}
}

func TestHandleCommandStopResetsEveryHandler(t *testing.T) {
	d := &recordingDelegate{}
	stopper := &stubHandler{id: "a", priority: 10, analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisStop}}
	other := &stubHandler{id: "b", priority: 5, analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain}}
	l := newTestLoop(t, []dialogue.Handler{stopper, other}, d)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.HandleCommand(ctx, dialogue.ParsedInput{Code: []string{"special", "stop"}}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if stopper.resetCalled != 1 || other.resetCalled != 1 {
		t.Fatalf("expected both handlers reset once, got stopper=%d other=%d", stopper.resetCalled, other.resetCalled)
	}
}

func TestAnalyzeRunsHandlersConcurrently(t *testing.T) {
	d := &recordingDelegate{}
	slow := &stubHandler{
		id: "slow", priority: 1, delay: 100 * time.Millisecond,
		analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain},
	}
	fast := &stubHandler{
		id: "fast", priority: 10, delay: 100 * time.Millisecond,
		analysis: dialogue.CommandAnalysisResult{Type: dialogue.AnalysisConfidentCommand},
		reply: &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: "fast wins"}},
			Expecting: dialogue.CategoryNone,
		},
	}
	l := newTestLoop(t, []dialogue.Handler{slow, fast}, d)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.HandleCommand(ctx, dialogue.CommandInput{Utterance: "go"}); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed >= 180*time.Millisecond {
		t.Fatalf("expected both handlers' AnalyzeCommand to run concurrently (~100ms), took %v", elapsed)
	}
	if got := d.lastText(); got != "fast wins" {
		t.Fatalf("expected higher-priority handler to win, got %q", got)
	}
}

func TestGetStateRoundTripsThroughStart(t *testing.T) {
	d := &recordingDelegate{}
	h := &stubHandler{id: "main", priority: 10}
	l := newTestLoop(t, []dialogue.Handler{h}, d)

	raw, err := l.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	store := prefs.NewMemory()
	f := formatter.New(store, nil)
	resumed := New([]dialogue.Handler{h}, d, f, logging.Discard(), store, "en", queue.New("user-input"))
	if err := resumed.Start(context.Background(), false, raw); err != nil {
		t.Fatalf("resumed Start: %v", err)
	}
	defer resumed.Stop()

	resumedRaw, err := resumed.GetState()
	if err != nil {
		t.Fatalf("resumed GetState: %v", err)
	}
	var first, second map[string]any
	if err := json.Unmarshal(raw, &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal(resumedRaw, &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if first["id"] != second["id"] {
		t.Fatalf("expected session id to survive the round trip, got %v vs %v", first["id"], second["id"])
	}
}
