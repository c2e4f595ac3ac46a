package chat

import (
	"context"
	"testing"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator_Translate(t *testing.T) {
	translator := NewTranslator(testCatalog(t))

	inv, err := translator.Translate(&chat.Request{
		Model: "claude-sonnet-3.7",
		Messages: []chat.Message{
			{Role: "user", Content: "--version"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-3.7", inv.Alias)
	assert.Equal(t, "claude-3-7-sonnet-20250219", inv.CLIModel)
	assert.Equal(t, "--version", inv.Prompt)
}

func TestTranslator_PromptAtLimit(t *testing.T) {
	translator := NewTranslator(testCatalog(t))

	prompt := make([]byte, maxPromptBytes)
	for i := range prompt {
		prompt[i] = 'x'
	}

	inv, err := translator.Translate(&chat.Request{
		Messages: []chat.Message{{Role: "user", Content: string(prompt)}},
	})
	require.NoError(t, err)
	assert.Len(t, inv.Prompt, maxPromptBytes)
}

func TestTranslator_NilRequest(t *testing.T) {
	_, err := NewTranslator(testCatalog(t)).Translate(nil)
	assert.ErrorIs(t, err, chat.ErrMalformedRequest)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"", 0},
		{"one", 1},
		{"one two", 2},
		{"one two three", 3},
		{"  spaced\tout\nwords  here ", 5},
		{"a b c d e f g h i j", 13},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, EstimateTokens(tt.text), "text %q", tt.text)
	}
}

func TestEstimateUsage_TotalIsSum(t *testing.T) {
	usage := EstimateUsage("how are you today", "fine thanks")
	assert.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
}

func TestRequestIDsFromContext(t *testing.T) {
	_, ok := RequestIDsFromContext(context.Background())
	assert.False(t, ok)

	ids := RequestIDs{ID: uuid.New(), ClientID: "abc"}
	got, ok := RequestIDsFromContext(WithRequestIDs(context.Background(), ids))
	assert.True(t, ok)
	assert.Equal(t, ids, got)
}
