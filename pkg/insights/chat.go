package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// Answerer answers a free-form question about an analyzed conversation.
// conversationContext carries the retrieved excerpts and may be empty when
// retrieval produced nothing useful.
type Answerer interface {
	Answer(ctx context.Context, question, conversationContext string) (string, error)
}

// Answer generates a plain-text reply grounded in the retrieved excerpts.
// Unlike Augment it uses text mode, since the reply goes straight to the user.
func (g *GeminiAugmenter) Answer(ctx context.Context, question, conversationContext string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.chatModel.GenerateContent(ctx, genai.Text(chatPrompt(question, conversationContext)))
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return text, nil
}

func chatPrompt(question, conversationContext string) string {
	var b strings.Builder
	b.WriteString("You are answering questions about a private chat conversation the user uploaded.\n")
	b.WriteString("Be concise and specific. Quote or paraphrase the messages when they support the answer.\n\n")
	if conversationContext == "" {
		b.WriteString("No conversation excerpts matched this question. Say so, then answer as best you can.\n\n")
	} else {
		b.WriteString("Relevant excerpts from the conversation:\n\n")
		b.WriteString(conversationContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
