package compact

import (
	"fmt"
	"strings"
)

// summaryInstruction drives incremental compaction. The transcript may
// open with a "Previous Summary:" line from an earlier pass; the model
// folds it in rather than restating it.
const summaryInstruction = `You compress chat history into a running summary.

Produce one cumulative summary of the conversation transcript below. If the transcript begins with "Previous Summary:", treat it as already-compressed history and merge it with the new dialogue instead of repeating it.

Rules:
- Keep facts, decisions, names, numbers, and open questions.
- Keep the user's goals and any constraints they stated.
- Drop greetings, filler, and repetition.
- Write plain prose in the third person, at most 300 words.
- Output only the summary text, with no preamble or headings.`

// lruInstructionFor builds the topic-pruning instruction. The recent
// summaries tell the model which topics are still hot; rounds unrelated
// to them are dropped entirely.
func lruInstructionFor(recent []string) string {
	context := "No recent context"
	if len(recent) > 0 {
		context = strings.Join(recent, "\n\n---\n\n")
	}
	return fmt.Sprintf(`You condense chat history, keeping only topics that are still active.

Recent context, oldest first:

%s

The transcript that follows holds older history and may include "Previous Summary:" lines. Produce one summary of it that keeps ONLY rounds related to the recent context above.

Rules:
- Compare each round against the recent context; skip unrelated rounds completely.
- For kept rounds, keep facts, decisions, names, numbers, and open questions.
- Prefer recent state over superseded state.
- Write plain prose in the third person, at most 300 words.
- Output only the summary text, with no preamble or headings.`, context)
}
