package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/internal/debate"
	"github.com/tas-rag-core/internal/retrieval"
	"github.com/tas-rag-core/internal/strategy"
	"github.com/tas-rag-core/internal/tools"
	"github.com/tas-rag-core/models"
)

type fakeRetrieval struct {
	result retrieval.Result
	err    error
}

func (f *fakeRetrieval) Search(ctx context.Context, q retrieval.Query) (retrieval.Result, error) {
	return f.result, f.err
}

type fakeComposer struct {
	answer string
	err    error
}

func (f *fakeComposer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.answer, f.err
}

type fakeCaseStore struct {
	existing *models.CaseBankEntry
	inserted *models.CaseBankEntry
}

func (f *fakeCaseStore) FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error) {
	return f.existing, nil
}
func (f *fakeCaseStore) FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error) {
	return nil, nil
}
func (f *fakeCaseStore) Insert(ctx context.Context, entry *models.CaseBankEntry) error {
	f.inserted = entry
	return nil
}

type fakeLogStore struct {
	logged       bool
	caseInserted bool
}

func (f *fakeLogStore) Insert(ctx context.Context, log *models.ExecutionLog) error {
	f.logged = true
	return nil
}
func (f *fakeLogStore) InsertCaseAndLog(ctx context.Context, caseEntry *models.CaseBankEntry, log *models.ExecutionLog) error {
	f.logged = true
	f.caseInserted = true
	return nil
}

type fakeStrategySelector struct {
	selectMode      retrieval.SearchMode
	observedFeature strategy.QueryFeatures
	observedAction  retrieval.SearchMode
	observedReward  float64
	observed        bool
}

func (f *fakeStrategySelector) Select(features strategy.QueryFeatures) retrieval.SearchMode {
	return f.selectMode
}

func (f *fakeStrategySelector) Observe(features strategy.QueryFeatures, action retrieval.SearchMode, reward float64) {
	f.observed = true
	f.observedFeature = features
	f.observedAction = action
	f.observedReward = reward
}

func newTestOrchestrator(ret RetrievalEngine, composer Composer, cases CaseStore, logs LogStore) *Orchestrator {
	return NewOrchestrator(ret, nil, nil, nil, nil, nil, nil, composer, cases, logs, nil, DefaultConfig())
}

func TestOrchestrate_HappyPathProducesAnswerWithCitations(t *testing.T) {
	chunkID, docID := uuid.New(), uuid.New()
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{
		{ChunkID: chunkID, DocID: docID, Text: "refunds are processed within 14 days"},
	}}}
	composer := &fakeComposer{answer: "Refunds take 14 days."}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	resp, err := o.Orchestrate(context.Background(), "req-1", "what is the refund window?", nil, "")

	require.NoError(t, err)
	assert.Equal(t, "Refunds take 14 days.", resp.Answer)
	assert.Len(t, resp.Citations, 1)
	assert.False(t, resp.Trace.Degraded)
	assert.True(t, logs.logged)
}

func TestOrchestrate_ZeroEvidenceMarksCiteStepDegraded(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{}}
	composer := &fakeComposer{answer: "I don't have evidence for this."}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	resp, err := o.Orchestrate(context.Background(), "req-2", "what is the meaning of life?", nil, "")

	require.NoError(t, err)
	require.NotNil(t, resp.Degraded)
	assert.Contains(t, resp.Degraded.Steps, "cite")
}

func TestOrchestrate_RetrieveFailurePropagatesAsTypedError(t *testing.T) {
	ret := &fakeRetrieval{err: models.NewUpstreamError("vector db down", errors.New("boom"))}
	composer := &fakeComposer{answer: "n/a"}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	_, err := o.Orchestrate(context.Background(), "req-3", "search for refund policy", nil, "")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindUpstreamTransient))
}

func TestOrchestrate_ComposeFailureReturnsTypedError(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{{ChunkID: uuid.New(), DocID: uuid.New(), Text: "x"}}}}
	composer := &fakeComposer{err: errors.New("llm down")}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	_, err := o.Orchestrate(context.Background(), "req-4", "explain the policy", nil, "")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindUpstreamTransient))
}

func TestOrchestrate_HighQualityPersistsCaseBankEntry(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{{ChunkID: uuid.New(), DocID: uuid.New(), Text: "evidence"}}}}
	composer := &fakeComposer{answer: "the answer"}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	_, err := o.Orchestrate(context.Background(), "req-5", "explain the policy", nil, "")

	require.NoError(t, err)
	assert.True(t, logs.caseInserted)
}

func TestOrchestrate_ExistingIdenticalCaseSkipsInsert(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{{ChunkID: uuid.New(), DocID: uuid.New(), Text: "evidence"}}}}
	composer := &fakeComposer{answer: "the answer"}
	cases := &fakeCaseStore{existing: &models.CaseBankEntry{CaseID: uuid.New()}}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	_, err := o.Orchestrate(context.Background(), "req-6", "explain the policy", nil, "")

	require.NoError(t, err)
	assert.False(t, logs.caseInserted)
	assert.True(t, logs.logged)
}

func TestOrchestrate_DegradedRetrievalCarriesThroughToResponse(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{
		Hits:          []retrieval.Hit{{ChunkID: uuid.New(), DocID: uuid.New(), Text: "evidence"}},
		Degraded:      true,
		DegradedSteps: []string{"vector"},
	}}
	composer := &fakeComposer{answer: "the answer"}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}

	o := newTestOrchestrator(ret, composer, cases, logs)
	resp, err := o.Orchestrate(context.Background(), "req-7", "explain the policy", nil, "")

	require.NoError(t, err)
	require.NotNil(t, resp.Degraded)
	assert.Contains(t, resp.Degraded.Steps, "vector")
}

func TestOrchestrate_AdaptiveModeFeedsRewardBackToStrategy(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{
		{ChunkID: uuid.New(), DocID: uuid.New(), Text: "evidence"},
	}}}
	composer := &fakeComposer{answer: "the answer"}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}
	sel := &fakeStrategySelector{selectMode: retrieval.SearchModeVector}

	cfg := DefaultConfig()
	cfg.AdaptiveEnabled = true
	o := NewOrchestrator(ret, nil, nil, nil, sel, nil, nil, composer, cases, logs, nil, cfg)

	_, err := o.Orchestrate(context.Background(), "req-8", "explain the policy", nil, "")

	require.NoError(t, err)
	assert.True(t, sel.observed)
	assert.Equal(t, retrieval.SearchModeVector, sel.observedAction)
}

func TestOrchestrate_NonAdaptiveModeNeverCallsObserve(t *testing.T) {
	ret := &fakeRetrieval{result: retrieval.Result{Hits: []retrieval.Hit{
		{ChunkID: uuid.New(), DocID: uuid.New(), Text: "evidence"},
	}}}
	composer := &fakeComposer{answer: "the answer"}
	cases := &fakeCaseStore{}
	logs := &fakeLogStore{}
	sel := &fakeStrategySelector{selectMode: retrieval.SearchModeVector}

	o := newTestOrchestrator(ret, composer, cases, logs)
	o.strategy = sel

	_, err := o.Orchestrate(context.Background(), "req-9", "explain the policy", nil, retrieval.SearchModeHybrid)

	require.NoError(t, err)
	assert.False(t, sel.observed)
}

func TestClassifyIntent_RecognizesSearchPrefix(t *testing.T) {
	assert.Equal(t, IntentSearch, classifyIntent("find all invoices from March"))
	assert.Equal(t, IntentClassify, classifyIntent("classify this document"))
	assert.Equal(t, IntentAnswer, classifyIntent("why did the refund fail?"))
}

var _ = tools.Result{}
var _ = debate.Result{}
var _ = json.RawMessage(nil)
