package compact

import (
	"testing"

	"parley/pkg/message"
)

// byteCounter counts one token per byte, keeping test arithmetic exact.
var byteCounter = CounterFunc(func(text string) int { return len(text) })

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"abcdefgh", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(text string) int { return 7 })
	if got := c.Count("anything"); got != 7 {
		t.Fatalf("Count = %d, want 7", got)
	}
}

func TestBudgetDefaults(t *testing.T) {
	b := newBudget(byteCounter, 0, 0)
	if b.perMessage != DefaultMessageOverhead {
		t.Errorf("perMessage = %d, want %d", b.perMessage, DefaultMessageOverhead)
	}
	if b.perSet != DefaultSetOverhead {
		t.Errorf("perSet = %d, want %d", b.perSet, DefaultSetOverhead)
	}

	if got := b.messages(nil); got != 0 {
		t.Errorf("empty set cost = %d, want 0", got)
	}

	msgs := []message.Message{
		message.NewHuman("ab"),
		message.NewAI("c"),
	}
	// 2 set + (4+2) + (4+1)
	if got := b.messages(msgs); got != 13 {
		t.Errorf("set cost = %d, want 13", got)
	}
}

func TestBudgetCustomOverheads(t *testing.T) {
	b := newBudget(byteCounter, 1, 10)
	msgs := []message.Message{message.NewHuman("xx")}
	// 10 set + 1 + 2
	if got := b.messages(msgs); got != 13 {
		t.Errorf("set cost = %d, want 13", got)
	}
}
