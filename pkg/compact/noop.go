package compact

import (
	"context"

	"parley/pkg/message"
)

// Noop transmits the full log every turn. It is the default when no
// strategy is configured.
type Noop struct{}

var _ Strategy = (*Noop)(nil)

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Name() string { return "noop" }

func (n *Noop) Process(_ context.Context, req Request) (*Response, error) {
	view := make([]message.Message, len(req.Messages))
	copy(view, req.Messages)
	return &Response{Messages: req.Messages, SendView: view}, nil
}
