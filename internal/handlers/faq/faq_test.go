package faq

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/dialogia/internal/dialogue"
)

func writeTopic(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write topic: %v", err)
	}
}

func TestLoadTopicsFromDirParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeTopic(t, dir, "hours.md", "---\nname: hours\ntriggers:\n  - \"open\"\n  - \"hours\"\n---\nWe're open 9 to 5.")

	topics, err := LoadTopicsFromDir(dir)
	if err != nil {
		t.Fatalf("LoadTopicsFromDir: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(topics))
	}
	if topics[0].Name != "hours" {
		t.Fatalf("expected name %q, got %q", "hours", topics[0].Name)
	}
	if topics[0].Reply != "We're open 9 to 5." {
		t.Fatalf("unexpected reply: %q", topics[0].Reply)
	}
}

func TestLoadTopicsFromMissingDirIsNotAnError(t *testing.T) {
	topics, err := LoadTopicsFromDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if topics != nil {
		t.Fatalf("expected nil topics, got %v", topics)
	}
}

func TestHandlerMatchesTriggerWord(t *testing.T) {
	topics := []*Topic{{Name: "hours", Triggers: []string{"open"}, Reply: "9 to 5."}}
	h := New("faq.hours", 0, "", topics)

	analysis, err := h.AnalyzeCommand(context.Background(), dialogue.CommandInput{Utterance: "when are you open?"})
	if err != nil {
		t.Fatalf("AnalyzeCommand: %v", err)
	}
	if analysis.Type != dialogue.AnalysisConfidentCommand {
		t.Fatalf("expected confident command, got %s", analysis.Type)
	}

	result, err := h.GetReply(context.Background(), analysis)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Messages))
	}
	text, ok := result.Messages[0].(dialogue.TextMessage)
	if !ok || text.Text != "9 to 5." {
		t.Fatalf("unexpected reply message: %+v", result.Messages[0])
	}
}

func TestHandlerFallsOutOfDomainWithoutMatch(t *testing.T) {
	h := New("faq.hours", 0, "", []*Topic{{Name: "hours", Triggers: []string{"open"}, Reply: "9 to 5."}})

	analysis, err := h.AnalyzeCommand(context.Background(), dialogue.CommandInput{Utterance: "what's the weather"})
	if err != nil {
		t.Fatalf("AnalyzeCommand: %v", err)
	}
	if analysis.Type != dialogue.AnalysisOutOfDomain {
		t.Fatalf("expected out of domain, got %s", analysis.Type)
	}
}
