package extraction

import (
	"strings"

	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/providers"
)

func countTokens(text string) int {
	return len(strings.Fields(text))
}

// TrimConversation keeps the newest messages that fit in limit tokens. The
// oldest kept message is cut to its tail when it does not fit whole. A limit
// of zero or less keeps everything.
func TrimConversation(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 {
		return msgs
	}

	remaining := limit
	var kept []providers.Message
	for i := len(msgs) - 1; i >= 0 && remaining > 0; i-- {
		m := msgs[i]
		n := countTokens(m.Content)
		if n <= remaining {
			kept = append(kept, m)
			remaining -= n
			continue
		}
		m.Content = memory.TrimTextToTokenLimit(m.Content, remaining)
		kept = append(kept, m)
		break
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// QueryText joins a conversation as "ROLE: content" blocks for the retrieval
// embedding.
func QueryText(msgs []providers.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = strings.ToUpper(m.Role) + ": " + m.Content
	}
	return strings.Join(parts, "\n\n")
}
