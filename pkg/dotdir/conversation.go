package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	conversationFile = "conversation.json"
)

// ConversationState is the persisted history of the last chat session.
type ConversationState struct {
	// Gateway is the chat endpoint the conversation was held against.
	Gateway string `json:"gateway,omitempty"`

	// Model is the model requested for the conversation, if any.
	Model string `json:"model,omitempty"`

	// UpdatedAt is when the state was last saved.
	UpdatedAt time.Time `json:"updated_at"`

	// Messages is the conversation history in chronological order.
	Messages []ConversationMessage `json:"messages"`
}

// ConversationMessage is a single finished message of a saved conversation.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadConversation loads the conversation state from a target
// .careline/conversation.json. Returns nil, nil if no state exists.
func (m *Manager) LoadConversation(overrideDir string) (*ConversationState, error) {
	path, err := m.Path(overrideDir, conversationFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation state: %w", err)
	}

	state := &ConversationState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing conversation state: %w", err)
	}

	return state, nil
}

// SaveConversation persists the conversation state to a target
// .careline/conversation.json. The file may hold health information, so it
// is written with 0600 permissions.
func (m *Manager) SaveConversation(state *ConversationState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil conversation state")
	}

	path, err := m.Path(overrideDir, conversationFile)
	if err != nil {
		return err
	}

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing conversation state: %w", err)
	}

	return nil
}

// ClearConversation removes the conversation state file so the next chat
// session starts fresh. Returns nil if the file doesn't exist.
func (m *Manager) ClearConversation(overrideDir string) error {
	path, err := m.Path(overrideDir, conversationFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing conversation state: %w", err)
	}

	return nil
}
