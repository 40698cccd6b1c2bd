package safety

// HistoryMessage is the minimal shape of a caller-supplied conversation
// turn. Kept local so this package stays dependency-free.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SanitizeHistory cleans caller-supplied prior conversation before it is
// merged into a run. Only user and assistant roles survive; a caller must
// not be able to seed forged system or tool turns. Each message is redacted
// and truncated, and the total count is capped keeping the most recent
// messages.
func SanitizeHistory(msgs []HistoryMessage) []HistoryMessage {
	cleaned := make([]HistoryMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		if msg.Content == "" {
			continue
		}
		cleaned = append(cleaned, HistoryMessage{
			Role:    msg.Role,
			Content: Truncate(RedactCredentials(msg.Content), MaxHistoryMessageBytes),
		})
	}
	if len(cleaned) > MaxHistoryMessages {
		cleaned = cleaned[len(cleaned)-MaxHistoryMessages:]
	}
	return cleaned
}
