package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
)

const answerSystemPrompt = "You are a corporate analyst. Write a clear, objective answer based only on the Context. " +
	"If something is not in the context, say clearly that there is not enough data. " +
	"Present numbers in a readable format and use short lists when it makes sense."

// Answerer turns a question and its context into prose
type Answerer struct {
	generator   llm.Generator
	temperature float64
}

// NewAnswerer creates an answerer
func NewAnswerer(generator llm.Generator, temperature float64) *Answerer {
	return &Answerer{generator: generator, temperature: temperature}
}

// AnswerPrompt builds the user message for the answering model
func AnswerPrompt(question, contextText, lang string) string {
	return fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nAnswer in %s.", question, contextText, lang)
}

// Answer calls the generation model once
func (a *Answerer) Answer(ctx context.Context, question, contextText, lang string) (string, error) {
	reply, err := a.generator.Generate(ctx, answerSystemPrompt, AnswerPrompt(question, contextText, lang), a.temperature)
	if err != nil {
		return "", errors.NewAnswerGenerationError(err)
	}
	answer := strings.TrimSpace(reply)
	if answer == "" {
		return "", errors.NewAnswerGenerationError(llm.ErrEmptyReply)
	}
	return answer, nil
}
