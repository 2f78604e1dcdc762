package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTurnInProgress is returned when a message is appended while an assistant
// reply is still streaming.
var ErrTurnInProgress = errors.New("assistant turn in progress")

// Observer is notified of every change to a Conversation.
type Observer interface {
	// OnAppend is called when a message is added, including the assistant
	// message created by the first fragment of a turn.
	OnAppend(msg Message)

	// OnUpdate is called each time the in-progress message grows.
	OnUpdate(msg Message)

	// OnFinish is called when the in-progress message is complete.
	OnFinish(msg Message)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Append func(Message)
	Update func(Message)
	Finish func(Message)
}

func (o ObserverFuncs) OnAppend(msg Message) {
	if o.Append != nil {
		o.Append(msg)
	}
}

func (o ObserverFuncs) OnUpdate(msg Message) {
	if o.Update != nil {
		o.Update(msg)
	}
}

func (o ObserverFuncs) OnFinish(msg Message) {
	if o.Finish != nil {
		o.Finish(msg)
	}
}

// handle points at the assistant message receiving fragments.
type handle struct {
	id    uuid.UUID
	index int
}

// Conversation is an ordered list of messages. It only grows at the end,
// except for the content of the in-progress assistant message.
//
// The in-progress message is tracked by an explicit handle created with the
// first fragment of a turn, never inferred from the last element. While a
// handle is held no other message can be appended, so the in-progress message
// is always last.
//
// A Conversation is not safe for concurrent use.
type Conversation struct {
	messages   []Message
	inProgress *handle
	observer   Observer
}

// NewConversation creates a conversation seeded with history. Messages
// without an ID get one.
func NewConversation(history ...Message) (*Conversation, error) {
	c := &Conversation{}
	for _, msg := range history {
		if err := c.Append(msg); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetObserver sets the observer notified of changes. A nil observer removes it.
func (c *Conversation) SetObserver(o Observer) {
	c.observer = o
}

// Append adds a finished message.
func (c *Conversation) Append(msg Message) error {
	if c.inProgress != nil {
		return ErrTurnInProgress
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	c.messages = append(c.messages, msg)
	c.notifyAppend(msg)

	return nil
}

// AppendUser adds a user message and returns it.
func (c *Conversation) AppendUser(content string) (Message, error) {
	msg := NewMessage(RoleUser, content)
	if err := c.Append(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// AppendAssistantFragment grows the in-progress assistant message by
// fragment. The first fragment of a turn creates the message. The updated
// message is returned.
func (c *Conversation) AppendAssistantFragment(fragment string) Message {
	if c.inProgress == nil {
		msg := NewMessage(RoleAssistant, fragment)
		c.messages = append(c.messages, msg)
		c.inProgress = &handle{id: msg.ID, index: len(c.messages) - 1}
		c.notifyAppend(msg)
		return msg
	}

	msg := &c.messages[c.inProgress.index]
	msg.Content += fragment
	c.notifyUpdate(*msg)

	return *msg
}

// InProgress returns the assistant message currently receiving fragments.
func (c *Conversation) InProgress() (Message, bool) {
	if c.inProgress == nil {
		return Message{}, false
	}
	return c.messages[c.inProgress.index], true
}

// Finish completes the in-progress message, if any, and returns it.
func (c *Conversation) Finish() (Message, bool) {
	msg, ok := c.InProgress()
	if !ok {
		return Message{}, false
	}

	c.inProgress = nil
	c.notifyFinish(msg)

	return msg, true
}

// Retract removes the in-progress message, if any, and returns it.
func (c *Conversation) Retract() (Message, bool) {
	msg, ok := c.InProgress()
	if !ok {
		return Message{}, false
	}

	c.messages = append(c.messages[:c.inProgress.index], c.messages[c.inProgress.index+1:]...)
	c.inProgress = nil

	return msg, true
}

// Remove deletes the finished message with the given ID. It is how a user
// message is taken back after its request failed.
func (c *Conversation) Remove(id uuid.UUID) bool {
	if c.inProgress != nil && c.inProgress.id == id {
		return false
	}

	for i := range c.messages {
		if c.messages[i].ID != id {
			continue
		}

		c.messages = append(c.messages[:i], c.messages[i+1:]...)
		if c.inProgress != nil && c.inProgress.index > i {
			c.inProgress.index--
		}
		return true
	}

	return false
}

// Messages returns a copy of the messages in order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) notifyAppend(msg Message) {
	if c.observer != nil {
		c.observer.OnAppend(msg)
	}
}

func (c *Conversation) notifyUpdate(msg Message) {
	if c.observer != nil {
		c.observer.OnUpdate(msg)
	}
}

func (c *Conversation) notifyFinish(msg Message) {
	if c.observer != nil {
		c.observer.OnFinish(msg)
	}
}
