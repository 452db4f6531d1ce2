// Package tokenizer counts and bounds text in model tokens.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/browsary/pkg/llm"
)

// DefaultEncoding is the tiktoken encoding used by the GPT-4 family.
const DefaultEncoding = "cl100k_base"

// charsPerToken approximates token counts when no encoding is loaded.
const charsPerToken = 4

// perMessageOverhead is the fixed token cost of the role framing of a message.
const perMessageOverhead = 4

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New loads the default encoding.
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding loads the named tiktoken encoding.
func NewWithEncoding(name string) (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", name, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// Approximate returns a tokenizer that estimates four characters per token.
// Use it when the encoding cannot be loaded, e.g. without network access to
// fetch the BPE ranks.
func Approximate() *Tokenizer {
	return &Tokenizer{}
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens returns the token count of a conversation.
func (t *Tokenizer) CountMessagesTokens(messages []*llm.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + t.CountTokens(string(m.Role)) + t.CountTokens(m.Content)
	}
	return total
}

// Truncate cuts text to at most maxTokens tokens. A truncated result ends
// with a marker naming how many tokens were dropped. A non-positive limit
// disables truncation.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}

	if t == nil || t.encoding == nil {
		limit := maxTokens * charsPerToken
		if len(text) <= limit {
			return text
		}
		runes := []rune(text)
		if len(runes) <= limit {
			return text
		}
		dropped := (len(runes) - limit + charsPerToken - 1) / charsPerToken
		return string(runes[:limit]) + truncationMarker(dropped)
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens]) + truncationMarker(len(tokens)-maxTokens)
}

func truncationMarker(dropped int) string {
	return fmt.Sprintf("\n... [truncated %d tokens]", dropped)
}
