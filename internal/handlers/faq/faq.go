// Package faq implements text-in/text-out FAQ handlers discovered from a
// directory of markdown files with YAML frontmatter, plus a registry for
// dynamically attached skill handlers (device kind
// `org.thingpedia.dialogue-handler`).
//
// Loading uses the same frontmatter delimiter, gopkg.in/yaml.v3
// unmarshal-into-struct trick, and directory-walk shape as a prompt-context
// loader would, generalized here from "prompt context for an LLM" into "one
// FAQ topic with trigger keywords and a canned reply", which is what a
// dialogue-handler FAQ actually needs instead of free text fed to a model.
package faq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mark3labs/dialogia/internal/dialogue"
)

const frontmatterSep = "---"

// Topic is one FAQ entry: a set of trigger keywords and the reply given
// when one matches.
type Topic struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
	Reply    string   `yaml:"-"`
}

// loadTopic reads one markdown file with YAML frontmatter (name,
// triggers) and a body used verbatim as the reply.
func loadTopic(path string) (*Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("faq: read %s: %w", path, err)
	}
	content := string(data)
	topic := &Topic{}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, frontmatterSep) {
		rest := trimmed[len(frontmatterSep):]
		frontmatter, body, found := strings.Cut(rest, "\n"+frontmatterSep)
		if found {
			if err := yaml.Unmarshal([]byte(frontmatter), topic); err != nil {
				return nil, fmt.Errorf("faq: parse frontmatter in %s: %w", path, err)
			}
			topic.Reply = strings.TrimSpace(strings.TrimPrefix(body, "\n"))
		} else {
			topic.Reply = trimmed
		}
	} else {
		topic.Reply = trimmed
	}

	if topic.Name == "" {
		base := filepath.Base(path)
		topic.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return topic, nil
}

// LoadTopicsFromDir loads every *.md file in dir as a Topic. A missing
// directory yields an empty set, not an error — FAQ packs are optional.
func LoadTopicsFromDir(dir string) ([]*Topic, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	var topics []*Topic
	var errs []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".md" {
			continue
		}
		t, err := loadTopic(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		topics = append(topics, t)
	}
	if len(errs) > 0 {
		return topics, fmt.Errorf("faq: some topics failed to load: %s", strings.Join(errs, "; "))
	}
	return topics, nil
}

// state is the handler's persisted getState()/reset() payload: nothing
// but a placeholder, since FAQ handlers are stateless across turns.
type state struct{}

// Handler implements dialogue.Handler over a fixed set of Topics, scoring
// a turn CONFIDENT when an utterance contains one of a topic's trigger
// words and OUT_OF_DOMAIN otherwise.
type Handler struct {
	id       string
	priority int
	icon     string
	topics   []*Topic

	matched *Topic // set by AnalyzeCommand, consumed by GetReply
}

// New creates an FAQ handler identified by id, serving topics.
func New(id string, priority int, icon string, topics []*Topic) *Handler {
	return &Handler{id: id, priority: priority, icon: icon, topics: topics}
}

func (h *Handler) UniqueID() string { return h.id }
func (h *Handler) Priority() int    { return h.priority }
func (h *Handler) Icon() string     { return h.icon }

func (h *Handler) Initialize(_ context.Context, _ json.RawMessage, _ bool) (*dialogue.ReplyResult, error) {
	return nil, nil
}

func (h *Handler) Reset() { h.matched = nil }

func (h *Handler) GetState() (json.RawMessage, error) {
	return json.Marshal(state{})
}

func (h *Handler) AnalyzeCommand(_ context.Context, input dialogue.UserInput) (dialogue.CommandAnalysisResult, error) {
	cmd, ok := input.(dialogue.CommandInput)
	if !ok {
		return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain}, nil
	}
	lower := strings.ToLower(cmd.Utterance)
	for _, t := range h.topics {
		for _, trigger := range t.Triggers {
			if trigger == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(trigger)) {
				h.matched = t
				return dialogue.CommandAnalysisResult{
					Type:      dialogue.AnalysisConfidentCommand,
					Utterance: cmd.Utterance,
				}, nil
			}
		}
	}
	return dialogue.CommandAnalysisResult{Type: dialogue.AnalysisOutOfDomain, Utterance: cmd.Utterance}, nil
}

func (h *Handler) GetReply(_ context.Context, _ dialogue.CommandAnalysisResult) (*dialogue.ReplyResult, error) {
	if h.matched == nil {
		return &dialogue.ReplyResult{
			Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: "Sorry, I don't have anything on that."}},
			Expecting: dialogue.CategoryNone,
		}, nil
	}
	reply := h.matched.Reply
	h.matched = nil
	return &dialogue.ReplyResult{
		Messages:  []dialogue.ReplyMessage{dialogue.TextMessage{Text: reply}},
		Expecting: dialogue.CategoryNone,
	}, nil
}
