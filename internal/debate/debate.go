// Package debate implements C10: a two-role debate followed by a judge
// synthesis (spec.md §4.10). Each role is a single LLM call; on any LLM
// failure the engine falls back to a single-shot compose instead of failing
// the request.
package debate

import (
	"context"
	"fmt"
)

const DefaultRounds = 1

// LLMClient is the subset of an LLM provider the debate engine needs — narrow
// enough to fake in tests instead of standing up a real anthropic-sdk-go
// client.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config tunes the engine (spec.md §4.10: "Round count is 1 by default").
type Config struct {
	Rounds int
}

func DefaultConfig() Config {
	return Config{Rounds: DefaultRounds}
}

// Result is a debate's outcome: the synthesized answer plus the raw
// affirmative/critical transcripts for the caller to surface as annotated
// disagreements.
type Result struct {
	Answer      string
	Affirmative []string
	Critical    []string
	FellBack    bool
}

// Engine implements C10.
type Engine struct {
	llm LLMClient
	cfg Config
}

func NewEngine(llm LLMClient, cfg Config) *Engine {
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultRounds
	}
	return &Engine{llm: llm, cfg: cfg}
}

const (
	affirmativeSystemPrompt = "You are the affirmative debater. Argue the strongest answer supported by the evidence."
	criticalSystemPrompt    = "You are the critical debater. Attack the affirmative answer's weakest claims using the evidence."
	judgeSystemPrompt       = "You are the judge. Synthesize a single answer from the affirmative and critical arguments, noting any unresolved disagreement."
)

// Run executes the debate: round(s) of affirmative/critical, then a judge
// synthesis (spec.md §4.10). On any LLM failure it falls back to a
// single-shot compose using the same user prompt.
func (e *Engine) Run(ctx context.Context, query, evidence string) (Result, error) {
	userPrompt := fmt.Sprintf("Query: %s\n\nEvidence:\n%s", query, evidence)

	var affirmatives, criticals []string
	for round := 0; round < e.cfg.Rounds; round++ {
		aff, err := e.llm.Complete(ctx, affirmativeSystemPrompt, userPrompt)
		if err != nil {
			return e.fallback(ctx, userPrompt)
		}
		affirmatives = append(affirmatives, aff)

		crit, err := e.llm.Complete(ctx, criticalSystemPrompt, fmt.Sprintf("%s\n\nAffirmative argument:\n%s", userPrompt, aff))
		if err != nil {
			return e.fallback(ctx, userPrompt)
		}
		criticals = append(criticals, crit)
	}

	judgePrompt := fmt.Sprintf("%s\n\nAffirmative arguments:\n%s\n\nCritical arguments:\n%s", userPrompt, joinNumbered(affirmatives), joinNumbered(criticals))
	answer, err := e.llm.Complete(ctx, judgeSystemPrompt, judgePrompt)
	if err != nil {
		return e.fallback(ctx, userPrompt)
	}

	return Result{Answer: answer, Affirmative: affirmatives, Critical: criticals}, nil
}

// fallback is the single-shot compose path (spec.md §4.10: "On any LLM
// failure, falls back to a single-shot compose").
func (e *Engine) fallback(ctx context.Context, userPrompt string) (Result, error) {
	answer, err := e.llm.Complete(ctx, "Answer the query directly from the evidence provided.", userPrompt)
	if err != nil {
		return Result{}, err
	}
	return Result{Answer: answer, FellBack: true}, nil
}

func joinNumbered(items []string) string {
	out := ""
	for i, item := range items {
		out += fmt.Sprintf("%d. %s\n", i+1, item)
	}
	return out
}
