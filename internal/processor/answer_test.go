package processor

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
)

func TestAnswerPrompt(t *testing.T) {
	got := AnswerPrompt("How many orders?", "ctx", "en-US")
	assert.Equal(t, "Question: How many orders?\n\nContext:\nctx\n\nAnswer in en-US.", got)
}

func TestAnswerer_Answer(t *testing.T) {
	gen := &scriptedGenerator{answerReply: "  There were 42 orders.\n"}
	a := NewAnswerer(gen, 0.3)

	answer, err := a.Answer(context.Background(), "How many orders?", "ctx", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "There were 42 orders.", answer)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "corporate analyst")
	assert.Equal(t, 0.3, calls[0].Temperature)
}

func TestAnswerer_Failures(t *testing.T) {
	a := NewAnswerer(&scriptedGenerator{answerErr: stderrors.New("timeout")}, 0.3)
	_, err := a.Answer(context.Background(), "q", "ctx", "en")
	assert.Equal(t, errors.ErrCodeAnswerGeneration, errors.CodeOf(err))

	a = NewAnswerer(&scriptedGenerator{answerReply: ""}, 0.3)
	_, err = a.Answer(context.Background(), "q", "ctx", "en")
	assert.Equal(t, errors.ErrCodeAnswerGeneration, errors.CodeOf(err))
}
