package compact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"parley/pkg/message"
)

func newTestLRU(t *testing.T, fake *fakeSummarizer) *LRU {
	t.Helper()
	// The token budget is high enough that the wrapped summarization
	// never fires; these tests drive the pruning logic directly.
	l, err := NewLRU(LRUConfig{SummarizeConfig: SummarizeConfig{
		MaxInputTokens: 1000000,
		Summarizer:     fake,
		Counter:        byteCounter,
	}})
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	return l
}

// lruFixture builds a log with n summary markers, each closing a short
// turn, plus an unsummarized tail turn.
func lruFixture(n int) []message.Message {
	msgs := []message.Message{message.NewSystem("sys")}
	for i := 1; i <= n; i++ {
		msgs = append(msgs,
			message.NewHuman(fmt.Sprintf("q%d", i)),
			message.NewAI(fmt.Sprintf("a%d", i)),
			message.NewSummaryMarker(2, fmt.Sprintf("s%d", i)),
		)
	}
	return append(msgs,
		message.NewHuman("tail q"),
		message.NewAI("tail a"),
	)
}

func TestNewLRUValidation(t *testing.T) {
	if _, err := NewLRU(LRUConfig{}); !errors.Is(err, ErrMaxTokensRequired) {
		t.Fatalf("err = %v, want ErrMaxTokensRequired", err)
	}
}

func TestLRUBelowCeiling(t *testing.T) {
	fake := &fakeSummarizer{}
	l := newTestLRU(t, fake)

	msgs := lruFixture(5)
	resp, err := l.Process(context.Background(), Request{Messages: msgs})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if fake.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", fake.calls)
	}
	if len(resp.Messages) != len(msgs) {
		t.Errorf("log length changed: %d, want %d", len(resp.Messages), len(msgs))
	}
}

func TestLRUPrunesColdTopics(t *testing.T) {
	fake := &fakeSummarizer{}
	l := newTestLRU(t, fake)

	msgs := lruFixture(6)
	resp, err := l.Process(context.Background(), Request{Messages: msgs})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(resp.Messages) != len(msgs)+1 {
		t.Fatalf("log length = %d, want %d", len(resp.Messages), len(msgs)+1)
	}

	marks := markerIndicesOfType(resp.Messages, message.MarkerSummary)
	lastSummary := marks[len(marks)-1]

	// The lru marker sits right after the summary marker it supersedes;
	// the original stays for the audit trail.
	lru := resp.Messages[lastSummary+1]
	if lru.MarkerType() != message.MarkerLRU {
		t.Fatalf("message after last summary marker is %+v, want lru marker", lru)
	}
	if from, ok := lru.PrunedFromMarker(); !ok || from != lastSummary {
		t.Errorf("pruned_from_marker = %d (%v), want %d", from, ok, lastSummary)
	}
	if lru.SummarizedCount() != 3 {
		t.Errorf("summarized_count = %d, want 3", lru.SummarizedCount())
	}
	if !strings.HasPrefix(lru.Content, "[LRU Pruned Summary] ") {
		t.Errorf("content = %q", lru.Content)
	}
	if resp.Messages[lastSummary].Summary() != "s6" {
		t.Errorf("superseded marker gone: %q", resp.Messages[lastSummary].Summary())
	}

	// The condensation window spans the two newest summary markers.
	wantTranscript := "Previous Summary: s5\nUser: q6\nAssistant: a6"
	if fake.lastTranscript != wantTranscript {
		t.Errorf("transcript = %q, want %q", fake.lastTranscript, wantTranscript)
	}

	// The recent five summaries steer the pruning; older ones do not.
	for _, s := range []string{"s2", "s3", "s4", "s5", "s6"} {
		if !strings.Contains(fake.lastInstruction, s) {
			t.Errorf("instruction lacks recent summary %q", s)
		}
	}
	if strings.Contains(fake.lastInstruction, "s1") {
		t.Errorf("instruction includes stale summary s1")
	}

	// The view now anchors at the lru marker.
	assertContents(t, resp.SendView, []string{
		"sys", lru.Content, "tail q", "tail a",
	})
}

func TestLRUDoesNotPruneTwice(t *testing.T) {
	fake := &fakeSummarizer{}
	l := newTestLRU(t, fake)

	resp, err := l.Process(context.Background(), Request{Messages: lruFixture(6)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	again, err := l.Process(context.Background(), Request{Messages: resp.Messages})
	if err != nil {
		t.Fatalf("Process again: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", fake.calls)
	}
	if len(again.Messages) != len(resp.Messages) {
		t.Errorf("second pass grew the log: %d, want %d", len(again.Messages), len(resp.Messages))
	}
}

func TestLRURemoveAndReprocess(t *testing.T) {
	fake := &fakeSummarizer{}
	l := newTestLRU(t, fake)

	resp, err := l.Process(context.Background(), Request{Messages: lruFixture(6)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	lruIdx := lastMarkerOfType(resp.Messages, message.MarkerLRU)
	if lruIdx < 0 {
		t.Fatalf("no lru marker after first pass")
	}

	// Dropping the lru marker restores the pre-pruning log; reprocessing
	// reproduces the marker at the same position.
	var without []message.Message
	without = append(without, resp.Messages[:lruIdx]...)
	without = append(without, resp.Messages[lruIdx+1:]...)

	redo, err := l.Process(context.Background(), Request{Messages: without})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	redoIdx := lastMarkerOfType(redo.Messages, message.MarkerLRU)
	if redoIdx != lruIdx {
		t.Fatalf("lru marker at %d, want %d", redoIdx, lruIdx)
	}
	if redo.Messages[redoIdx].Summary() != resp.Messages[lruIdx].Summary() {
		t.Errorf("reproduced summary differs: %q vs %q",
			redo.Messages[redoIdx].Summary(), resp.Messages[lruIdx].Summary())
	}
}

func TestLRUFailureLeavesLogAlone(t *testing.T) {
	errDown := errors.New("condense failed")
	fake := &fakeSummarizer{
		summarizeFunc: func(context.Context, string, string) (string, error) {
			return "", errDown
		},
	}
	l := newTestLRU(t, fake)

	msgs := lruFixture(6)
	if _, err := l.Process(context.Background(), Request{Messages: msgs}); !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want wrapped %v", err, errDown)
	}
	if i := lastMarkerOfType(msgs, message.MarkerLRU); i >= 0 {
		t.Errorf("lru marker appeared in input log at %d", i)
	}
}
