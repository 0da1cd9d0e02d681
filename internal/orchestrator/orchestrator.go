// Package orchestrator implements C12: the seven-step pipeline that turns a
// query into an answer (spec.md §4.12). Each step is a pure-ish function of a
// mutable PipelineState, wrapped in its own timeout (spec.md §5).
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tas-rag-core/internal/dagcache"
	"github.com/tas-rag-core/internal/debate"
	"github.com/tas-rag-core/internal/retrieval"
	"github.com/tas-rag-core/internal/strategy"
	"github.com/tas-rag-core/internal/telemetry"
	"github.com/tas-rag-core/internal/tools"
	"github.com/tas-rag-core/models"
)

// Intent is the classification from step 1 (spec.md §4.12 step 1).
type Intent string

const (
	IntentSearch   Intent = "search"
	IntentAnswer   Intent = "answer"
	IntentClassify Intent = "classify"
)

const (
	DefaultEmbedTimeout     = 10 * time.Second
	DefaultRetrieveTimeout  = 2 * time.Second
	DefaultToolTimeout      = 10 * time.Second
	DefaultComposeTimeout   = 30 * time.Second
	DefaultRequestTimeout   = 60 * time.Second
	DefaultPersistThreshold = 0.75
	DefaultDupeThreshold    = 0.98
)

// EvidenceItem is one piece of retrieved or tool-produced evidence folded
// into PipelineState.Evidence (spec.md §4.12 step 4).
type EvidenceItem struct {
	ChunkID uuid.UUID
	DocID   uuid.UUID
	Text    string
	Source  string // "retrieval" | "tool" | "debate"
}

// Citation is a compose-step claim's provenance (spec.md §4.12 step 5/6).
type Citation struct {
	ChunkID uuid.UUID
	DocID   uuid.UUID
}

// PipelineState is threaded through all seven steps (spec.md §4.12).
type PipelineState struct {
	RequestID     string
	Query         string
	AgentID       *uuid.UUID
	Mode          retrieval.SearchMode
	Intent        Intent
	Plan          []string
	Evidence      []EvidenceItem
	ToolResults   []tools.Result
	DebateAnswer  string
	Answer        string
	Citations     []Citation
	Unverified    []string
	Quality       float64
	Degraded      bool
	DegradedSteps []string
	Canceled      bool

	// adaptiveFeatures/adaptiveSelected record the C9 Select call so respond
	// can feed the observed reward back into the same bucket/action.
	adaptiveFeatures strategy.QueryFeatures
	adaptiveSelected bool
}

// Response is what Orchestrate returns to the caller (spec.md §6:
// "orchestrate(...) -> {answer, citations, evidence, quality, trace,
// degraded?, request_id}").
type Response struct {
	Answer    string
	Citations []Citation
	Evidence  []EvidenceItem
	Quality   float64
	Trace     PipelineState
	Degraded  *DegradedMarker
	RequestID string
}

type DegradedMarker struct {
	Steps []string
}

// Embedder is the subset of C1 the respond step needs: it embeds the query
// to compare its vector against the case bank for the dedup check and to
// store it as the new case's query_vector. The retrieve step does not call
// it; C2 embeds the query through its own embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Similarity is the subset of C1's Service the respond step needs for the
// query_vector cosine dedup check (spec.md §4.12 step 7).
type Similarity interface {
	Similarity(a, b []float32) float64
}

// RetrievalEngine is the subset of C2 the retrieve step needs.
type RetrievalEngine interface {
	Search(ctx context.Context, q retrieval.Query) (retrieval.Result, error)
}

// StrategySelector is the subset of C9 the retrieve step needs.
type StrategySelector interface {
	Select(features strategy.QueryFeatures) retrieval.SearchMode
	Observe(features strategy.QueryFeatures, action retrieval.SearchMode, reward float64)
}

// Debater is the subset of C10 the tools_debate step needs.
type Debater interface {
	Run(ctx context.Context, query, evidence string) (debate.Result, error)
}

// ToolExecutor is the subset of C11 the tools_debate step needs.
type ToolExecutor interface {
	Invoke(ctx context.Context, toolName string, args json.RawMessage) tools.Result
}

// Composer produces the final answer text from a query and evidence.
type Composer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CaseStore is the subset of C6 the respond step needs.
type CaseStore interface {
	FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error)
	FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error)
	Insert(ctx context.Context, entry *models.CaseBankEntry) error
}

// LogStore is the subset of the execution log DAO the respond step needs.
type LogStore interface {
	Insert(ctx context.Context, log *models.ExecutionLog) error
	InsertCaseAndLog(ctx context.Context, caseEntry *models.CaseBankEntry, log *models.ExecutionLog) error
}

// AgentSource resolves an agent's taxonomy scope.
type AgentSource interface {
	Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
}

// Config tunes timeouts and feature gates (spec.md §4.12, §5, §6).
type Config struct {
	EmbedTimeout     time.Duration
	RetrieveTimeout  time.Duration
	ToolTimeout      time.Duration
	ComposeTimeout   time.Duration
	RequestTimeout   time.Duration
	PersistThreshold float64
	DupeThreshold    float64

	DebateEnabled   bool
	ToolsEnabled    bool
	MetaPlanEnabled bool
	AdaptiveEnabled bool

	// AdaptiveLatencyWeight mirrors strategy.Config.LatencyWeight for the
	// reward computed in the respond step (spec.md §4.9).
	AdaptiveLatencyWeight float64
}

func DefaultConfig() Config {
	return Config{
		EmbedTimeout:     DefaultEmbedTimeout,
		RetrieveTimeout:  DefaultRetrieveTimeout,
		ToolTimeout:      DefaultToolTimeout,
		ComposeTimeout:   DefaultComposeTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		PersistThreshold: DefaultPersistThreshold,
		DupeThreshold:    DefaultDupeThreshold,

		AdaptiveLatencyWeight: strategy.DefaultLatencyWeight,
	}
}

// Orchestrator implements C12.
type Orchestrator struct {
	retrieval RetrievalEngine
	embedder  Embedder
	dag       *dagcache.Cache
	agents    AgentSource
	strategy  StrategySelector
	debater   Debater
	toolExec  ToolExecutor
	composer  Composer
	cases     CaseStore
	logs      LogStore
	sim       Similarity
	cfg       Config
}

func NewOrchestrator(retrieval RetrievalEngine, embedder Embedder, dag *dagcache.Cache, agents AgentSource,
	strategy StrategySelector, debater Debater, toolExec ToolExecutor, composer Composer,
	cases CaseStore, logs LogStore, sim Similarity, cfg Config) *Orchestrator {
	return &Orchestrator{
		retrieval: retrieval, embedder: embedder, dag: dag, agents: agents,
		strategy: strategy, debater: debater, toolExec: toolExec, composer: composer,
		cases: cases, logs: logs, sim: sim, cfg: cfg,
	}
}

// Orchestrate runs the seven steps of spec.md §4.12 against one query.
func (o *Orchestrator) Orchestrate(ctx context.Context, requestID, query string, agentID *uuid.UUID, mode retrieval.SearchMode) (Response, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	state := PipelineState{RequestID: requestID, Query: query, AgentID: agentID, Mode: mode}

	// Step 1: intent
	state.Intent = classifyIntent(query)

	// Step 2: retrieve
	if err := o.retrieve(ctx, &state); err != nil {
		if models.IsKind(err, models.ErrKindCanceled) {
			state.Canceled = true
			telemetry.ObserveRequest("canceled", time.Since(start))
			return Response{RequestID: requestID, Trace: state}, err
		}
		// embed failure in production is a typed failure per spec.md §4.12.
		telemetry.ObserveRequest("error", time.Since(start))
		return Response{RequestID: requestID, Trace: state}, err
	}
	telemetry.StrategySelected.WithLabelValues(string(state.Mode)).Inc()

	// Step 3: plan
	if o.cfg.MetaPlanEnabled {
		state.Plan = buildPlan(state.Intent, query, state.Evidence)
	}

	// Step 4: tools_debate
	o.toolsDebate(ctx, &state)

	// Step 5: compose
	if err := o.compose(ctx, &state); err != nil {
		if models.IsKind(err, models.ErrKindCanceled) {
			state.Canceled = true
			telemetry.ObserveRequest("canceled", time.Since(start))
		} else {
			telemetry.ObserveRequest("error", time.Since(start))
		}
		return Response{RequestID: requestID, Trace: state}, err
	}

	// Step 6: cite
	o.cite(&state)

	// Step 7: respond
	if err := o.respond(ctx, &state); err != nil {
		state.Degraded = true
		state.DegradedSteps = append(state.DegradedSteps, "respond")
	}

	// Close the C9 feedback loop: feed the observed reward back for the
	// bucket/action Select chose, so its Q-values move off the uniform prior
	// (spec.md §4.9).
	if state.adaptiveSelected && o.strategy != nil {
		reward := strategy.Reward(state.Quality, time.Since(start).Milliseconds(), strategy.Config{LatencyWeight: o.cfg.AdaptiveLatencyWeight})
		o.strategy.Observe(state.adaptiveFeatures, state.Mode, reward)
	}

	for _, step := range state.DegradedSteps {
		telemetry.DegradedSteps.WithLabelValues(step).Inc()
	}

	resp := Response{
		Answer:    state.Answer,
		Citations: state.Citations,
		Evidence:  state.Evidence,
		Quality:   state.Quality,
		Trace:     state,
		RequestID: requestID,
	}
	outcome := "ok"
	if state.Degraded {
		resp.Degraded = &DegradedMarker{Steps: state.DegradedSteps}
		outcome = "degraded"
	}
	telemetry.ObserveRequest(outcome, time.Since(start))
	return resp, nil
}

func classifyIntent(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(q, "classify") || strings.HasPrefix(q, "tag"):
		return IntentClassify
	case strings.HasPrefix(q, "find") || strings.HasPrefix(q, "search") || strings.HasPrefix(q, "list"):
		return IntentSearch
	default:
		return IntentAnswer
	}
}

// buildPlan is the meta-planner (spec.md §4.12 step 3): a short list of
// sub-goals derived from intent and the top retrieved snippets. Heuristic,
// not an LLM call, so it never degrades the pipeline.
func buildPlan(intent Intent, query string, evidence []EvidenceItem) []string {
	plan := []string{"understand: " + query}
	if len(evidence) == 0 {
		plan = append(plan, "no evidence retrieved; answer from general knowledge with a caveat")
		return plan
	}
	plan = append(plan, "ground the answer in the retrieved evidence")
	if intent == IntentAnswer {
		plan = append(plan, "synthesize a direct answer and cite supporting chunks")
	}
	return plan
}

// retrieve is step 2 (spec.md §4.12 step 2): runs the strategy chosen by C9
// (or the requested/hybrid mode if disabled) through C2, honoring the
// agent's taxonomy scope.
func (o *Orchestrator) retrieve(ctx context.Context, state *PipelineState) error {
	mode := state.Mode
	var features strategy.QueryFeatures
	if o.cfg.AdaptiveEnabled && o.strategy != nil && mode == "" {
		features = extractFeatures(state.Query)
		mode = o.strategy.Select(features)
		state.adaptiveFeatures = features
		state.adaptiveSelected = true
	} else if mode == "" {
		mode = retrieval.SearchModeHybrid
	}
	state.Mode = mode

	var canonicalIn [][]string
	var version string
	if state.AgentID != nil && o.agents != nil {
		agent, err := o.agents.Get(ctx, *state.AgentID)
		if err != nil {
			return err
		}
		version = agent.TaxonomyVersion
		dag, err := o.dag.Get(ctx, version)
		if err != nil {
			return err
		}
		for _, nodeID := range agent.TaxonomyNodeIDs {
			if node, ok := dag.Node(nodeID); ok {
				canonicalIn = append(canonicalIn, []string(node.CanonicalPath))
			}
		}
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, o.cfg.RetrieveTimeout)
	defer cancel()

	result, err := o.retrieval.Search(retrieveCtx, retrieval.Query{
		Text:        state.Query,
		CanonicalIn: canonicalIn,
		Version:     version,
		SearchMode:  mode,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.NewCanceledError("retrieve canceled")
		}
		return err
	}

	if result.Degraded {
		state.Degraded = true
		state.DegradedSteps = append(state.DegradedSteps, result.DegradedSteps...)
	}

	for _, hit := range result.Hits {
		state.Evidence = append(state.Evidence, EvidenceItem{
			ChunkID: hit.ChunkID, DocID: hit.DocID, Text: hit.Text, Source: "retrieval",
		})
	}
	return nil
}

// extractFeatures builds C9's QueryFeatures from the raw query text.
func extractFeatures(query string) strategy.QueryFeatures {
	digits, total := 0, 0
	for _, r := range query {
		if r == ' ' {
			continue
		}
		total++
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(digits) / float64(total)
	}
	return strategy.QueryFeatures{
		Length:           len(query),
		HasQuotedStrings: strings.Contains(query, `"`) || strings.Contains(query, "'"),
		DigitRatio:       ratio,
		LanguageHint:     "en",
	}
}

// toolsDebate is step 4 (spec.md §4.12 step 4): execute tools and/or debate
// as indicated by intent/evidence, folding results into state.Evidence.
// Neither sub-step aborts the pipeline on failure — both degrade.
func (o *Orchestrator) toolsDebate(ctx context.Context, state *PipelineState) {
	if o.cfg.DebateEnabled && o.debater != nil && state.Intent == IntentAnswer {
		debateCtx, cancel := context.WithTimeout(ctx, o.cfg.ComposeTimeout)
		result, err := o.debater.Run(debateCtx, state.Query, evidenceText(state.Evidence))
		cancel()
		if err != nil {
			state.Degraded = true
			state.DegradedSteps = append(state.DegradedSteps, "debate")
		} else {
			state.DebateAnswer = result.Answer
		}
	}

	if o.cfg.ToolsEnabled && o.toolExec != nil && state.Intent != IntentClassify {
		toolCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
		res := o.toolExec.Invoke(toolCtx, "calculator", nil)
		cancel()
		state.ToolResults = append(state.ToolResults, res)
		if res.Err != nil {
			state.Degraded = true
			state.DegradedSteps = append(state.DegradedSteps, "tools")
		}
	}
}

func evidenceText(evidence []EvidenceItem) string {
	var b strings.Builder
	for _, e := range evidence {
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// compose is step 5 (spec.md §4.12 step 5): generate the answer from query +
// evidence.
func (o *Orchestrator) compose(ctx context.Context, state *PipelineState) error {
	composeCtx, cancel := context.WithTimeout(ctx, o.cfg.ComposeTimeout)
	defer cancel()

	if state.DebateAnswer != "" {
		state.Answer = state.DebateAnswer
		state.Citations = citeAllEvidence(state.Evidence)
		return nil
	}

	prompt := "Query: " + state.Query + "\n\nEvidence:\n" + evidenceText(state.Evidence)
	answer, err := o.composer.Complete(composeCtx, "Answer the query using only the evidence provided. Cite chunk ids you rely on.", prompt)
	if err != nil {
		if composeCtx.Err() != nil {
			return models.NewCanceledError("compose canceled")
		}
		return models.NewUpstreamError("compose failed", err)
	}
	state.Answer = answer
	state.Citations = citeAllEvidence(state.Evidence)
	return nil
}

func citeAllEvidence(evidence []EvidenceItem) []Citation {
	citations := make([]Citation, 0, len(evidence))
	for _, e := range evidence {
		citations = append(citations, Citation{ChunkID: e.ChunkID, DocID: e.DocID})
	}
	return citations
}

// cite is step 6 (spec.md §4.12 step 6). When any evidence was retrieved it
// returns at once: the answer is cited to the whole evidence list and no
// sentence is checked against the evidence individually. When there is no
// evidence, every sentence of the answer is marked unverified (none is
// dropped) and the step is recorded as degraded.
func (o *Orchestrator) cite(state *PipelineState) {
	if len(state.Evidence) > 0 {
		return
	}
	sentences := splitSentences(state.Answer)
	state.Unverified = sentences
	state.Degraded = true
	state.DegradedSteps = append(state.DegradedSteps, "cite")
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// respond is step 7 (spec.md §4.12 step 7): finalize the response, write the
// ExecutionLog, and persist a CaseBankEntry when quality clears the
// persist threshold and no identical case already exists.
func (o *Orchestrator) respond(ctx context.Context, state *PipelineState) error {
	state.Quality = estimateQuality(state)

	success := state.Answer != "" && !state.Canceled
	log := &models.ExecutionLog{
		Success:         success,
		ExecutionTimeMs: 0,
		Context:         models.JSONMap{"request_id": state.RequestID, "intent": string(state.Intent)},
	}
	if !success {
		msg := "no answer produced"
		log.ErrorMessage = &msg
	}

	if state.Quality < o.cfg.PersistThreshold {
		return o.logs.Insert(ctx, log)
	}

	existing, err := o.cases.FindByExactQuery(ctx, state.Query)
	if err != nil {
		return err
	}
	if existing != nil {
		return o.logs.Insert(ctx, log)
	}

	var queryVector models.Vector1536
	if o.embedder != nil {
		vec, err := o.embedder.Embed(ctx, state.Query)
		if err == nil {
			queryVector = models.Vector1536(vec)
			if o.sim != nil {
				similar, err := o.cases.FindSimilar(ctx, vec, 1, 0)
				if err == nil && len(similar) > 0 && similar[0].QueryVector != nil {
					if o.sim.Similarity(vec, []float32(*similar[0].QueryVector)) >= o.cfg.DupeThreshold {
						return o.logs.Insert(ctx, log)
					}
				}
			}
		}
	}

	sources := make(models.ChunkRefs, 0, len(state.Evidence))
	for _, e := range state.Evidence {
		sources = append(sources, models.ChunkRef{ChunkID: e.ChunkID, DocID: e.DocID})
	}
	quality := state.Quality
	entry := &models.CaseBankEntry{
		Query:   state.Query,
		Answer:  state.Answer,
		Sources: sources,
		Quality: &quality,
	}
	if queryVector != nil {
		entry.QueryVector = &queryVector
	}
	return o.logs.InsertCaseAndLog(ctx, entry, log)
}

// estimateQuality derives a rough quality signal in [0,1] from how many
// claims ended up cited versus unverified, folded with a small bonus for a
// non-degraded run.
func estimateQuality(state *PipelineState) float64 {
	if state.Answer == "" {
		return 0
	}
	total := len(state.Citations) + len(state.Unverified)
	if total == 0 {
		return 0.5
	}
	score := float64(len(state.Citations)) / float64(total)
	if state.Degraded {
		score *= 0.9
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
