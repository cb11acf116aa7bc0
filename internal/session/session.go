// Package session implements the round-trip invariant: session state is
// the union of handler state plus {currentHandler, expecting, raw, icon,
// platformData, choices}; Reset clears exactly this set, and
// getState()/start(..., getState()) must yield identical subsequent
// behavior on identical inputs.
//
// Persistence format is versioned JSON with a
// Version/CreatedAt/UpdatedAt/HandlerState envelope, flat rather than
// tree-structured — this agent has one linear conversation per session,
// not a branching checkpoint tree.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/mark3labs/dialogia/internal/dialogue"
)

// HandlerState is one handler's opaque getState() result, keyed by the
// handler's uniqueId.
type HandlerState map[string][]byte

// State is the full session-scope snapshot named above.
type State struct {
	Version      string                 `json:"version"`
	ID           string                 `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	HandlerState HandlerState           `json:"handler_state"`
	CurrentHandler string               `json:"current_handler,omitempty"`
	Expecting    dialogue.ValueCategory `json:"expecting,omitempty"`
	Raw          bool                   `json:"raw,omitempty"`
	Icon         string                 `json:"icon,omitempty"`
	PlatformData *dialogue.PlatformData `json:"platform_data,omitempty"`
	Choices      []string               `json:"choices,omitempty"`
}

const currentVersion = "1.0"

// New creates a fresh, empty session state with a generated ID.
func New() *State {
	now := time.Now()
	return &State{
		Version:      currentVersion,
		ID:           uuid.NewString(),
		CreatedAt:    now,
		UpdatedAt:    now,
		HandlerState: make(HandlerState),
	}
}

// Reset clears exactly the set named above, leaving the
// session ID and creation time untouched (a session is reset, not recreated).
func (s *State) Reset() {
	s.HandlerState = make(HandlerState)
	s.CurrentHandler = ""
	s.Expecting = dialogue.CategoryNone
	s.Raw = false
	s.Icon = ""
	s.PlatformData = nil
	s.Choices = nil
	s.UpdatedAt = time.Now()
}

// Touch updates UpdatedAt; callers invoke this after mutating the struct
// directly (e.g. loop.go setting CurrentHandler/Expecting per turn).
func (s *State) Touch() {
	s.UpdatedAt = time.Now()
}

// SaveToFile serializes the state with sonic and writes it atomically via
// a temp-file rename, since a partial write here would corrupt session
// resumption.
func (s *State) SaveToFile(path string) error {
	s.UpdatedAt = time.Now()
	raw, err := sonic.ConfigStd.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFromFile deserializes a previously saved state.
func LoadFromFile(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	var s State
	if err := sonic.ConfigStd.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	if s.HandlerState == nil {
		s.HandlerState = make(HandlerState)
	}
	return &s, nil
}
