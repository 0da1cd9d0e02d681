package debate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	responses []string
	calls     int
	failAt    int // -1 means never fail
}

func (s *scriptedLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	idx := s.calls
	s.calls++
	if s.failAt >= 0 && idx == s.failAt {
		return "", errors.New("llm unavailable")
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func TestEngine_RunProducesJudgeSynthesis(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{"affirmative take", "critical take", "synthesized answer"},
		failAt:    -1,
	}
	e := NewEngine(llm, DefaultConfig())

	res, err := e.Run(context.Background(), "what is the refund policy?", "evidence chunk 1")
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", res.Answer)
	assert.False(t, res.FellBack)
	assert.Equal(t, []string{"affirmative take"}, res.Affirmative)
	assert.Equal(t, []string{"critical take"}, res.Critical)
}

func TestEngine_FallsBackOnAffirmativeFailure(t *testing.T) {
	llm := &scriptedLLM{failAt: 0, responses: []string{"", "", "direct answer"}}
	e := NewEngine(llm, DefaultConfig())

	res, err := e.Run(context.Background(), "q", "evidence")
	require.NoError(t, err)
	assert.True(t, res.FellBack)
}

func TestEngine_FallsBackOnJudgeFailure(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{"aff", "crit"},
		failAt:    2,
	}
	// the fallback call is a fresh Complete invocation (index 3), give it a response
	llm.responses = append(llm.responses, "", "direct fallback answer")
	e := NewEngine(llm, DefaultConfig())

	res, err := e.Run(context.Background(), "q", "evidence")
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, "direct fallback answer", res.Answer)
}

func TestEngine_FallbackPropagatesErrorWhenFallbackAlsoFails(t *testing.T) {
	llm := &scriptedLLM{failAt: 0}
	e := NewEngine(llm, DefaultConfig())

	_, err := e.Run(context.Background(), "q", "evidence")
	require.Error(t, err)
}

func TestEngine_MultiRoundAccumulatesTranscripts(t *testing.T) {
	cfg := Config{Rounds: 2}
	llm := &scriptedLLM{
		responses: []string{"aff1", "crit1", "aff2", "crit2", "judge synthesis"},
		failAt:    -1,
	}
	e := NewEngine(llm, cfg)

	res, err := e.Run(context.Background(), "q", "evidence")
	require.NoError(t, err)
	assert.Len(t, res.Affirmative, 2)
	assert.Len(t, res.Critical, 2)
	assert.True(t, strings.Contains(res.Answer, "judge"))
}
