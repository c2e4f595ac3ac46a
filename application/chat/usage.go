package chat

import (
	"strings"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"
)

// tokensPerWord approximates BPE token counts from whitespace-separated words
const tokensPerWord = 1.3

// EstimateTokens returns a rough token count for text. The CLI does not report
// real usage.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// EstimateUsage builds the usage block for a prompt and its completion
func EstimateUsage(prompt, completion string) chat.Usage {
	p := EstimateTokens(prompt)
	c := EstimateTokens(completion)
	return chat.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
