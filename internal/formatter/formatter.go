// Package formatter implements template-string interpolation,
// localization, and rendering of executor result tuples into the
// ReplyMessage sum, deterministic on identical inputs.
//
// Templates are Jinja2-style ({{ var }}, {% if %}) rather than flat
// {{var}} substitution, because plural/choice selectors keyed by locale
// need real control flow that a flat string-replace cannot express; gonja
// is the Jinja-compatible engine used for that job.
package formatter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nikolalohinski/gonja"

	"github.com/mark3labs/dialogia/internal/ast"
	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/prefs"
)

// Locale holds the template strings used for one language. Only "en" ships
// by default; additional locales are added by registering more Locale
// values with the same key set.
type Locale struct {
	// ConfirmHeader introduces the confirmation prose rendered before a
	// yes/no prompt.
	ConfirmHeader string
	// Clause renders one invocation within the confirmation prose.
	Clause string
	// Didnt is the "didn't understand" message.
	Didnt string
	// Nevermind is the conversation-exit message.
	Nevermind string
	// ParseError is the parse/type-error message.
	ParseError string
	// ExecutorError is the per-result executor error message.
	ExecutorError string
	// LoopError is the unexpected-exception message for a user-input turn.
	LoopError string
	// APIError is the unexpected-exception message for a notification item.
	APIError string
	// YesWhat is the boundary-behavior re-prompt for an empty/unrecognized
	// yes/no answer.
	YesWhat string
}

var defaultEN = Locale{
	ConfirmHeader: "Okay, I will:",
	Clause:        "{{ clause }}",
	Didnt:         "Sorry, I didn't understand that.",
	Nevermind:     "Sorry I couldn't help on that.",
	ParseError:    "Sorry, I don't know how to do that yet.",
	ExecutorError: "Sorry, that did not work: {{ message }}.",
	LoopError:     "Sorry, I had an error processing your command: {{ message }}.",
	APIError:      "Sorry, that did not work: {{ message }}.",
	YesWhat:       "Yes what?",
}

// Formatter renders template strings and executor result tuples for one
// session. The locale is passed to each call; prefs is stored but not read,
// so no timezone or unit preference affects the output.
type Formatter struct {
	locales map[string]Locale
	prefs   prefs.Store
	preview *collab.WebPreviewFetcher
}

// New creates a Formatter with the built-in "en" locale registered. preview
// may be nil; when set, URL-shaped results are rendered as RDL cards using
// its fetched title/snippet.
func New(store prefs.Store, preview *collab.WebPreviewFetcher) *Formatter {
	return &Formatter{
		locales: map[string]Locale{"en": defaultEN},
		prefs:   store,
		preview: preview,
	}
}

// RegisterLocale adds or replaces the template set for a locale code.
func (f *Formatter) RegisterLocale(code string, l Locale) {
	f.locales[code] = l
}

func (f *Formatter) locale(code string) Locale {
	if l, ok := f.locales[code]; ok {
		return l
	}
	return f.locales["en"]
}

// render evaluates a Jinja2-style template string against vars. A template
// parse/exec failure degrades to the raw template text rather than an
// error, since a formatting bug must never crash the loop.
func render(tmpl string, vars map[string]any) string {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return tmpl
	}
	out, err := tpl.Execute(gonja.Context(vars))
	if err != nil {
		return tmpl
	}
	return out
}

// Didnt renders the "didn't understand" message for locale.
func (f *Formatter) Didnt(locale string) dialogue.ReplyMessage {
	return dialogue.TextMessage{Text: f.locale(locale).Didnt}
}

// Nevermind renders the conversation-exit message.
func (f *Formatter) Nevermind(locale string) dialogue.ReplyMessage {
	return dialogue.TextMessage{Text: f.locale(locale).Nevermind}
}

// ParseError renders the parse/type-error message.
func (f *Formatter) ParseError(locale string) dialogue.ReplyMessage {
	return dialogue.TextMessage{Text: f.locale(locale).ParseError}
}

// ExecutorError renders the per-result executor-error message.
func (f *Formatter) ExecutorError(locale string, err error) dialogue.ReplyMessage {
	text := render(f.locale(locale).ExecutorError, map[string]any{"message": err.Error()})
	return dialogue.TextMessage{Text: text}
}

// LoopError renders the unexpected-exception message for a user-input
// turn.
func (f *Formatter) LoopError(locale string, err error) dialogue.ReplyMessage {
	text := render(f.locale(locale).LoopError, map[string]any{"message": err.Error()})
	return dialogue.TextMessage{Text: text}
}

// APIError renders the unexpected-exception message for a notification
// item.
func (f *Formatter) APIError(locale string, err error) dialogue.ReplyMessage {
	text := render(f.locale(locale).APIError, map[string]any{"message": err.Error()})
	return dialogue.TextMessage{Text: text}
}

// YesWhat renders the boundary-behavior re-prompt.
func (f *Formatter) YesWhat(locale string) dialogue.ReplyMessage {
	return dialogue.TextMessage{Text: f.locale(locale).YesWhat}
}

// ConfirmationProse renders a program's statements into deterministic
// confirmation text: "Okay, I will: <clause>; <clause>; ...".
// Determinism follows directly from walking Invocations() in AST order.
func (f *Formatter) ConfirmationProse(locale string, program *ast.Program) string {
	loc := f.locale(locale)
	var clauses []string
	for _, inv := range program.Invocations() {
		clauses = append(clauses, invocationClause(inv))
	}
	body := strings.Join(clauses, "; ")
	return loc.ConfirmHeader + " " + body
}

func invocationClause(inv *ast.Invocation) string {
	var args []string
	for _, s := range inv.Slots {
		if s.Filled {
			args = append(args, fmt.Sprintf("%s=%v", s.Name, s.Value))
		}
	}
	sort.Strings(args)
	name := inv.Class + "." + inv.Function
	if inv.DeviceID != "" {
		name = fmt.Sprintf("%s(id=%q).%s", inv.Class, inv.DeviceID, inv.Function)
	}
	if len(args) == 0 {
		return name + "()"
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// RenderResult turns one executor {outputType, outputValue} tuple into a
// ReplyMessage. URL-shaped values become RDL cards (fetched via
// preview) when a WebPreviewFetcher is configured and the fetch succeeds;
// otherwise they fall back to a Link, and everything else becomes Text.
func (f *Formatter) RenderResult(ctx context.Context, locale string, ev collab.ExecutionEvent) dialogue.ReplyMessage {
	if ev.Err != nil {
		return f.ExecutorError(locale, ev.Err)
	}
	if url, ok := ev.OutputValue["picture_url"].(string); ok && url != "" {
		return dialogue.PictureMessage{URL: url}
	}
	if url, ok := ev.OutputValue["link"].(string); ok && url != "" {
		if f.preview != nil {
			if preview, err := f.preview.Fetch(ctx, url); err == nil && preview.Title != "" {
				return dialogue.RDLMessage{DisplayTitle: preview.Title, WebCallback: url}
			}
		}
		return dialogue.LinkMessage{Title: url, URL: url}
	}
	return dialogue.TextMessage{Text: renderGeneric(ev)}
}

func renderGeneric(ev collab.ExecutionEvent) string {
	var parts []string
	keys := make([]string, 0, len(ev.OutputValue))
	for k := range ev.OutputValue {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "_id" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", k, ev.OutputValue[k]))
	}
	if len(parts) == 0 {
		return ev.OutputType
	}
	return strings.Join(parts, ", ")
}
