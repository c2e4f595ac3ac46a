package chat

import (
	"fmt"
	"strings"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"
)

const (
	maxMessages = 100

	// maxPromptBytes stays under the kernel's 128 KiB limit for one argv element
	maxPromptBytes = 100000
)

// Translator turns an API request into a CLI invocation. Everything it
// rejects is rejected before a process is spawned.
type Translator struct {
	catalog *chat.Catalog
}

// NewTranslator creates a translator resolving models against catalog
func NewTranslator(catalog *chat.Catalog) *Translator {
	return &Translator{catalog: catalog}
}

// Translate validates req and builds the invocation for it. The returned
// invocation's Alias is what the response must echo.
func (t *Translator) Translate(req *chat.Request) (*chat.Invocation, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	alias, err := t.catalog.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	prompt, err := lastUserMessage(req.Messages)
	if err != nil {
		return nil, err
	}

	echoed := req.Model
	if echoed == "" {
		echoed = alias.ID
	}

	return &chat.Invocation{
		Alias:    echoed,
		CLIModel: alias.CLIModel,
		Prompt:   prompt,
	}, nil
}

func validate(req *chat.Request) error {
	if req == nil || len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages cannot be empty", chat.ErrMalformedRequest)
	}
	if req.Stream {
		return fmt.Errorf("%w: streaming is not supported", chat.ErrMalformedRequest)
	}
	if len(req.Messages) > maxMessages {
		return fmt.Errorf("%w: too many messages: %d (max %d)", chat.ErrMalformedRequest, len(req.Messages), maxMessages)
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem, chat.RoleUser, chat.RoleAssistant:
		case "":
			return fmt.Errorf("%w: message %d: role cannot be empty", chat.ErrMalformedRequest, i)
		default:
			return fmt.Errorf("%w: message %d: invalid role '%s' (must be user, assistant, or system)", chat.ErrMalformedRequest, i, msg.Role)
		}
	}
	return nil
}

// lastUserMessage returns the content of the final user turn. Earlier turns
// are not forwarded because the CLI keeps no conversation state here.
func lastUserMessage(messages []chat.Message) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != chat.RoleUser {
			continue
		}
		prompt := messages[i].Content
		if strings.TrimSpace(prompt) == "" {
			break
		}
		if len(prompt) > maxPromptBytes {
			return "", fmt.Errorf("%w: user message too long (%d bytes, max %d)", chat.ErrMalformedRequest, len(prompt), maxPromptBytes)
		}
		return prompt, nil
	}
	return "", fmt.Errorf("%w: No user message found in the conversation", chat.ErrMalformedRequest)
}
