// Package cmd implements the dialogiad command-line test harness: a REPL
// that reads lines as either a free-form utterance or one of the `/`
// bookkeeping shorthands and drives the agent through a cobra/viper/fang
// root command with flag/env/config-file binding and graceful shutdown.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/sjson"

	"github.com/mark3labs/dialogia/internal/collab"
	"github.com/mark3labs/dialogia/internal/config"
	"github.com/mark3labs/dialogia/internal/delegate"
	"github.com/mark3labs/dialogia/internal/dialogue"
	"github.com/mark3labs/dialogia/internal/handlers/faq"
	"github.com/mark3labs/dialogia/internal/handlers/program"
	"github.com/mark3labs/dialogia/internal/logging"
	"github.com/mark3labs/dialogia/internal/prefs"
	"github.com/mark3labs/dialogia/internal/session"
	"github.com/mark3labs/dialogia/internal/subdialogue"
	"github.com/mark3labs/dialogia/pkg/dialogia"
)

var (
	configFile  string
	debugFlag   bool
	localeFlag  string
	faqDirFlag  string
	sessionFlag string
)

// rootCmd is the dialogiad entry point: a REPL over stdin/stdout driving a
// single conversational agent session.
var rootCmd = &cobra.Command{
	Use:   "dialogiad",
	Short: "Run the conversational dialogue agent",
	Long:  "dialogiad is a command-line test harness for the formal-program dialogue agent: a REPL exercising the same intent queue, handler arbiter, and sub-dialogue primitives a real assistant front end would drive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(cmd.Context())
	},
}

// GetRootCommand returns the root command with its version set, for main.go
// to hand to fang.
func GetRootCommand(v string) *cobra.Command {
	rootCmd.Version = v
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a config file")
	flags.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	flags.StringVar(&localeFlag, "locale", "", "conversation locale (default en)")
	flags.StringVar(&faqDirFlag, "faq-dir", "", "directory of FAQ topic packs")
	flags.StringVar(&sessionFlag, "session", "", "path to persist/resume session state")

	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("locale", flags.Lookup("locale"))
	_ = viper.BindPFlag("faq.dir", flags.Lookup("faq-dir"))
	_ = viper.BindPFlag("session.path", flags.Lookup("session"))
}

func runREPL(ctx context.Context) error {
	v := viper.GetViper()
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}

	log := logging.New(cfg.Debug || debugFlag)
	store := prefs.NewMemory()
	d := delegate.NewCLI(os.Stdout, log)

	var nlu collab.NLUClient = collab.NewDemoNLU()
	var executor collab.Executor = collab.DemoExecutor{}

	// The program handler needs its Capabilities and a Formatter at
	// construction time, but the Runtime implementing Capabilities needs
	// the same input queue the loop pops from, and the loop's own
	// Formatter must be the same instance so confirmation prose and
	// execution-result rendering agree. We build both ahead of time and
	// thread them through the handler set and the Config the loop is
	// built from.
	inputQ := dialogia.NewCapabilities()
	f := dialogia.NewFormatter(store, nil, nil)
	runtime := subdialogue.New(inputQ, d, "", nil, nil, store)

	programHandler := program.New("program", 100, "", runtime, nlu, executor, nil, f, cfg.Locale)
	handlers := []dialogue.Handler{programHandler}

	if cfg.FAQ.Dir != "" {
		topics, err := faq.LoadTopicsFromDir(cfg.FAQ.Dir)
		if err != nil {
			log.Warn("faq: failed to load topics", "err", err)
		}
		handlers = append(handlers, faq.New("faq", 50, "", topics))
	}

	agent := dialogia.New(dialogia.Config{
		Handlers:   handlers,
		Delegate:   d,
		Prefs:      store,
		Logger:     log,
		Locale:     cfg.Locale,
		Formatter:  f,
		InputQueue: inputQ,
	})

	var initialState json.RawMessage
	if cfg.Session.Path != "" {
		if st, err := session.LoadFromFile(cfg.Session.Path); err == nil {
			if raw, err := json.Marshal(st); err == nil {
				initialState = raw
			}
		}
	}

	if err := agent.Start(ctx, true, initialState); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	defer agent.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stdout, "dialogiad ready. Type a message, or /help for commands.")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		input, quit := parseLine(line)
		if quit {
			break
		}
		if input == nil {
			continue
		}
		if err := agent.HandleCommand(ctx, input); err != nil {
			log.Warn("handle command failed", "err", err)
		}
		if cfg.Session.Path != "" {
			if raw, err := agent.GetState(); err == nil {
				// Stamp a save timestamp onto the opaque state blob without
				// decoding it into session.State, which belongs to the
				// internal loop/session packages, not this harness.
				stamped, err := sjson.SetBytes(raw, "persisted_at", time.Now().UTC().Format(time.RFC3339))
				if err != nil {
					stamped = raw
				}
				_ = os.WriteFile(cfg.Session.Path, stamped, 0o644)
			}
		}
	}
	return scanner.Err()
}

// parseLine turns one REPL line into a UserInput, recognizing the `/`
// bookkeeping shorthands named in the control vocabulary. quit is
// true for "/exit"/"/quit".
func parseLine(line string) (input dialogue.UserInput, quit bool) {
	if !strings.HasPrefix(line, "/") {
		return dialogue.CommandInput{Utterance: line}, false
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return nil, true
	case "/help":
		fmt.Println("/yes /no /nevermind /stop /debug /makerule /choice N — type anything else as a free-form utterance")
		return nil, false
	case "/yes":
		return dialogue.ParsedInput{Code: []string{"bookkeeping", "yes"}}, false
	case "/no":
		return dialogue.ParsedInput{Code: []string{"bookkeeping", "no"}}, false
	case "/nevermind":
		return dialogue.ParsedInput{Code: []string{"special", "nevermind"}}, false
	case "/stop":
		return dialogue.ParsedInput{Code: []string{"special", "stop"}}, false
	case "/debug":
		return dialogue.ParsedInput{Code: []string{"special", "debug"}}, false
	case "/makerule":
		return dialogue.ParsedInput{Code: []string{"special", "makerule"}}, false
	case "/choice":
		if len(fields) < 2 {
			return nil, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, false
		}
		return dialogue.ParsedInput{Code: []string{"bookkeeping", "choice"}, Entities: map[string]any{"choice": n, "value": n}}, false
	default:
		fmt.Printf("unrecognized command %q\n", fields[0])
		return nil, false
	}
}
