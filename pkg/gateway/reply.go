package gateway

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/careline/pkg/utils"
)

const quoteLen = 80

// scriptedReply builds the assistant reply for a request.
func scriptedReply(configured string, messages []chatMessage) string {
	if configured != "" {
		return configured
	}

	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if last == "" {
		return "Hello! How can I help with your care today?"
	}

	return fmt.Sprintf("You asked: %q. I can share general information, but please confirm any change to your treatment with your care team.",
		utils.Truncate(last, quoteLen))
}

// splitDeltas cuts text into deltas of n words each. Whitespace stays attached
// to the word before it, so joining the deltas restores text exactly.
func splitDeltas(text string, n int) []string {
	if n <= 0 {
		n = defaultChunkWords
	}
	if text == "" {
		return nil
	}

	words := strings.SplitAfter(text, " ")
	deltas := make([]string, 0, len(words)/n+1)
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		d := strings.Join(words[i:end], "")
		if d != "" {
			deltas = append(deltas, d)
		}
	}
	return deltas
}
