package arbiter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/dialogia/internal/dialogue"
)

// handler satisfies dialogue.Handler minimally for arbiter tests, which
// only ever call UniqueID/Priority on the candidates.
type handler struct {
	id       string
	priority int
}

func (h handler) Initialize(_ context.Context, _ json.RawMessage, _ bool) (*dialogue.ReplyResult, error) {
	return nil, nil
}
func (h handler) AnalyzeCommand(_ context.Context, _ dialogue.UserInput) (dialogue.CommandAnalysisResult, error) {
	return dialogue.CommandAnalysisResult{}, nil
}
func (h handler) GetReply(_ context.Context, _ dialogue.CommandAnalysisResult) (*dialogue.ReplyResult, error) {
	return nil, nil
}
func (h handler) GetState() (json.RawMessage, error) { return nil, nil }
func (h handler) Reset()                             {}
func (h handler) UniqueID() string                   { return h.id }
func (h handler) Priority() int                      { return h.priority }
func (h handler) Icon() string                       { return "" }

func candidate(id string, priority int, t dialogue.AnalysisType) Candidate {
	return Candidate{
		Handler:  handler{id: id, priority: priority},
		Analysis: dialogue.CommandAnalysisResult{Type: t},
	}
}

func TestStopAlwaysWinsOverConfident(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0, dialogue.AnalysisConfidentCommand),
		candidate("b", 100, dialogue.AnalysisStop),
	}
	d := Select(candidates, "")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "b" {
		t.Fatalf("expected STOP to win, got %+v", d.Selected)
	}
}

func TestHigherConfidenceWins(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0, dialogue.AnalysisNonConfidentCommand),
		candidate("b", 0, dialogue.AnalysisConfidentCommand),
	}
	d := Select(candidates, "")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "b" {
		t.Fatalf("expected confident command to win, got %+v", d.Selected)
	}
}

func TestFollowupOnlyFromCurrentHandler(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0, dialogue.AnalysisConfidentFollowup),
		candidate("b", 0, dialogue.AnalysisNonConfidentCommand),
	}
	d := Select(candidates, "current")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "b" {
		t.Fatalf("followup from non-current handler must be discarded, got %+v", d.Selected)
	}
}

func TestFollowupAcceptedFromCurrentHandler(t *testing.T) {
	candidates := []Candidate{
		candidate("current", 0, dialogue.AnalysisConfidentFollowup),
		candidate("b", 0, dialogue.AnalysisNonConfidentCommand),
	}
	d := Select(candidates, "current")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "current" {
		t.Fatalf("expected current handler's followup to win, got %+v", d.Selected)
	}
}

func TestPriorityTiebreak(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 1, dialogue.AnalysisConfidentCommand),
		candidate("b", 5, dialogue.AnalysisConfidentCommand),
	}
	d := Select(candidates, "")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "b" {
		t.Fatalf("expected higher priority to win tie, got %+v", d.Selected)
	}
}

func TestCurrentHandlerTiebreak(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0, dialogue.AnalysisConfidentCommand),
		candidate("current", 0, dialogue.AnalysisConfidentCommand),
	}
	d := Select(candidates, "current")
	if d.Selected == nil || d.Selected.Handler.UniqueID() != "current" {
		t.Fatalf("expected current handler to win tie, got %+v", d.Selected)
	}
}

func TestOutOfDomainNeverSelected(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0, dialogue.AnalysisOutOfDomain),
		candidate("b", 0, dialogue.AnalysisOutOfDomain),
	}
	d := Select(candidates, "")
	if d.Selected != nil {
		t.Fatalf("expected nil fallback, got %+v", d.Selected)
	}
}
