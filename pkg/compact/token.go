package compact

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"parley/pkg/message"
)

// TokenCounter estimates the token count of a text. Implementations must
// be deterministic and safe for concurrent use; strategies assume roughly
// length-proportional behavior but not an exact tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to the TokenCounter interface.
type CounterFunc func(text string) int

// Count calls f.
func (f CounterFunc) Count(text string) int { return f(text) }

// Chat-format overhead defaults: a few tokens of framing per message plus
// a fixed cost for the whole request. Approximations, not tokenizer truth.
const (
	DefaultMessageOverhead = 4
	DefaultSetOverhead     = 2
)

// EstimateTokens approximates a token count as one token per four bytes.
// Used when no tokenizer is available.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// NewTiktokenCounter returns a counter backed by the cl100k_base encoding.
func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{enc: enc}, nil
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

var (
	defaultCounterOnce sync.Once
	defaultCounter     TokenCounter
)

// DefaultCounter returns the shared default counter: tiktoken cl100k_base,
// or the byte-length estimator when the encoding cannot be loaded.
func DefaultCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		c, err := NewTiktokenCounter()
		if err != nil {
			defaultCounter = CounterFunc(EstimateTokens)
			return
		}
		defaultCounter = c
	})
	return defaultCounter
}

// budget computes message-set token costs with chat-format overheads.
type budget struct {
	counter    TokenCounter
	perMessage int
	perSet     int
}

func newBudget(counter TokenCounter, perMessage, perSet int) budget {
	if counter == nil {
		counter = DefaultCounter()
	}
	if perMessage == 0 {
		perMessage = DefaultMessageOverhead
	}
	if perSet == 0 {
		perSet = DefaultSetOverhead
	}
	return budget{counter: counter, perMessage: perMessage, perSet: perSet}
}

// message returns the cost of a single message within a set.
func (b budget) message(m message.Message) int {
	return b.perMessage + b.counter.Count(m.Content)
}

// messages returns the cost of sending msgs as one request.
func (b budget) messages(msgs []message.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := b.perSet
	for _, m := range msgs {
		total += b.message(m)
	}
	return total
}
