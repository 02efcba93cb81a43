// Package classifier judges whether a message is on-topic by asking the
// LLM collaborator a single yes/no question.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/offchainlab/harvestd/pkg/llm"
)

// promptTemplate is the fixed single-turn question shape. Arguments:
// keyword, subject text, keyword.
const promptTemplate = "想象你是%s的专家，请问 \"%s\" 和 %s 相关吗？请只用是或否回答。"

// Result is a relevance verdict. RawAnswer keeps the collaborator's
// original response text for audit.
type Result struct {
	Relevant  bool
	RawAnswer string
}

type Classifier struct {
	provider llm.Provider
	keyword  string
}

// New builds a classifier bound to an immutable topic keyword.
func New(provider llm.Provider, keyword string) *Classifier {
	return &Classifier{provider: provider, keyword: keyword}
}

func (c *Classifier) Keyword() string {
	return c.keyword
}

// Classify asks whether subject is related to the configured keyword.
// The verdict is fail-closed: only an answer whose first meaningful token
// is an affirmative marker counts as relevant, and any empty or malformed
// answer is simply not relevant.
func (c *Classifier) Classify(ctx context.Context, subject string) (Result, error) {
	prompt := BuildPrompt(c.keyword, subject)

	answer, err := c.provider.Query(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("relevance query: %w", err)
	}

	return Result{
		Relevant:  IsAffirmative(answer),
		RawAnswer: answer,
	}, nil
}

// BuildPrompt renders the yes/no question for a keyword and subject text.
func BuildPrompt(keyword, subject string) string {
	return fmt.Sprintf(promptTemplate, keyword, subject, keyword)
}

// IsAffirmative reports whether the first meaningful token of answer is
// an affirmative marker: "是" or a case-insensitive "yes". Trailing
// punctuation ("是。", "Yes.") does not matter.
func IsAffirmative(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return false
	}

	if strings.HasPrefix(trimmed, "是") {
		return true
	}

	token := strings.ToLower(firstWord(trimmed))
	return token == "yes"
}

func firstWord(s string) string {
	end := len(s)
	for i, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			end = i
			break
		}
	}
	return s[:end]
}
