package compact

import (
	"strings"

	"parley/pkg/message"
)

// renderTranscript flattens messages into the role-labeled plain text
// fed to the summarizer. Markers contribute their stored summary, so
// earlier compactions fold into the next one instead of being lost.
func renderTranscript(msgs []message.Message) (string, error) {
	var parts []string
	for _, m := range msgs {
		var label, text string
		switch {
		case m.IsMarker():
			label, text = "Previous Summary", m.Summary()
		case m.Role == message.RoleHuman:
			label, text = "User", m.Content
		case m.Role == message.RoleAI:
			label, text = "Assistant", m.Content
		default:
			label, text = "Message", m.Content
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, label+": "+text)
		}
	}

	if len(parts) == 0 {
		return "", ErrEmptyTranscript
	}
	return strings.Join(parts, "\n"), nil
}
