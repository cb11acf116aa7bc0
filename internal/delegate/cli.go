package delegate

import (
	"fmt"
	"io"
	"strings"
	"sync"

	lipgloss "charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/logging"
)

// styles names one lipgloss.Style per semantic role rather than inlining
// ANSI codes at the call site.
type styles struct {
	agent  lipgloss.Style
	choice lipgloss.Style
	link   lipgloss.Style
	ask    lipgloss.Style
}

func newStyles() styles {
	return styles{
		agent:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		choice: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		link:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Underline(true),
		ask:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
	}
}

// CLI is the Delegate implementation the test harness (cmd) uses:
// it writes styled lines to an io.Writer. Send* calls are serialized with a
// mutex so interleaved goroutines (e.g. a notification arriving mid-render)
// never tear a line in half.
type CLI struct {
	mu  sync.Mutex
	w   io.Writer
	st  styles
	log logging.Logger
	md  *glamour.TermRenderer
}

// NewCLI creates a CLI delegate writing to w. A nil glamour renderer (e.g.
// construction failed on an unusual terminal) degrades multi-line replies
// to plain styled text rather than failing Send.
func NewCLI(w io.Writer, log logging.Logger) *CLI {
	md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		md = nil
	}
	return &CLI{w: w, st: newStyles(), log: log, md: md}
}

// Send renders text as the agent's reply. Multi-line text — an FAQ topic's
// markdown body, for instance — is run through glamour first so headings,
// lists, and emphasis render as more than a wall of literal `#`/`*`
// characters; a single line is just styled and printed, matching every
// other Send* method here.
func (c *CLI) Send(text, icon string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := "agent"
	if icon != "" {
		prefix = icon
	}
	body := text
	if c.md != nil && strings.Contains(text, "\n") {
		if rendered, err := c.md.Render(text); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	_, err := fmt.Fprintln(c.w, c.st.agent.Render(fmt.Sprintf("[%s] %s", prefix, body)))
	return c.logErr("send", err)
}

func (c *CLI) SendPicture(url, icon string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, c.st.link.Render("picture: "+url))
	return c.logErr("send_picture", err)
}

func (c *CLI) SendRDL(rdl dialogue.RDLMessage, icon string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, c.st.agent.Render(rdl.DisplayTitle)+"\n  "+c.st.link.Render(rdl.WebCallback))
	return c.logErr("send_rdl", err)
}

func (c *CLI) SendChoice(index int, icon, title, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, c.st.choice.Render(fmt.Sprintf("  %d) %s", index, title)))
	return c.logErr("send_choice", err)
}

func (c *CLI) SendLink(title, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, c.st.link.Render(fmt.Sprintf("%s: %s", title, url)))
	return c.logErr("send_link", err)
}

func (c *CLI) SendButton(title, json string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, c.st.choice.Render("["+title+"]"))
	return c.logErr("send_button", err)
}

func (c *CLI) SendAskSpecial(kind dialogue.AskSpecialKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == dialogue.SpecialNull {
		return nil
	}
	_, err := fmt.Fprintln(c.w, c.st.ask.Render(fmt.Sprintf("(expecting: %s)", kind)))
	return c.logErr("send_ask_special", err)
}

func (c *CLI) logErr(op string, err error) error {
	if err != nil && c.log != nil {
		c.log.Warn("delegate send failed", "op", op, "err", err)
	}
	return err
}
