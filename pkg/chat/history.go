package chat

import (
	"parley/pkg/compact"
	"parley/pkg/message"
)

// AddMessages appends previously recorded messages to the log. This is
// the restore path for persisted conversations; every role must be a
// valid wire role, and nothing is appended when validation fails.
func (c *Conversation) AddMessages(msgs ...message.Message) error {
	for _, m := range msgs {
		if _, err := message.ParseRole(string(m.Role)); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, msgs...)
	return nil
}

// History returns a copy of the full log, markers included.
func (c *Conversation) History() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]message.Message, len(c.log))
	copy(out, c.log)
	return out
}

// Clear drops the entire log, the initial system message included.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// Reset drops the log, re-seeds the initial system message, and clears
// any per-conversation state the strategy holds.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log = nil
	if c.system != "" {
		c.log = append(c.log, message.NewSystem(c.system))
	}
	if r, ok := c.strategy.(compact.Resetter); ok {
		r.Reset()
	}
}
