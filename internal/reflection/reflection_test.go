package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/models"
)

type fakeLogs struct {
	byCase map[uuid.UUID][]models.ExecutionLog
	caseIDs []uuid.UUID
}

func (f *fakeLogs) LastNForCase(ctx context.Context, caseID uuid.UUID, n int) ([]models.ExecutionLog, error) {
	logs := f.byCase[caseID]
	if len(logs) > n {
		logs = logs[:n]
	}
	return logs, nil
}

func (f *fakeLogs) DistinctCaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	return f.caseIDs, nil
}

type fakeCases struct {
	entries map[uuid.UUID]*models.CaseBankEntry
	failGet map[uuid.UUID]bool
}

func (f *fakeCases) Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error) {
	if f.failGet[caseID] {
		return nil, errors.New("boom")
	}
	e, ok := f.entries[caseID]
	if !ok {
		return nil, models.NewValidationError("not found")
	}
	return e, nil
}

func (f *fakeCases) Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error {
	e := f.entries[caseID]
	e.Quality = patch.Quality
	return nil
}

func makeLogs(n int, successes int) []models.ExecutionLog {
	logs := make([]models.ExecutionLog, n)
	for i := 0; i < n; i++ {
		logs[i] = models.ExecutionLog{Success: i < successes}
	}
	return logs
}

func TestSuccessRate_BelowMinSamplesReturnsNotOK(t *testing.T) {
	caseID := uuid.New()
	logs := &fakeLogs{byCase: map[uuid.UUID][]models.ExecutionLog{caseID: makeLogs(5, 5)}}
	e := NewEngine(logs, &fakeCases{}, DefaultConfig())

	_, ok, err := e.SuccessRate(context.Background(), caseID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuccessRate_ComputesRatio(t *testing.T) {
	caseID := uuid.New()
	logs := &fakeLogs{byCase: map[uuid.UUID][]models.ExecutionLog{caseID: makeLogs(10, 7)}}
	e := NewEngine(logs, &fakeCases{}, DefaultConfig())

	rate, ok, err := e.SuccessRate(context.Background(), caseID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.7, rate, 1e-9)
}

func TestReflectOne_AppliesEMAToExistingQuality(t *testing.T) {
	caseID := uuid.New()
	startQuality := 0.5
	logs := &fakeLogs{byCase: map[uuid.UUID][]models.ExecutionLog{caseID: makeLogs(10, 10)}}
	cases := &fakeCases{entries: map[uuid.UUID]*models.CaseBankEntry{
		caseID: {CaseID: caseID, Quality: &startQuality},
	}}
	e := NewEngine(logs, cases, DefaultConfig())

	require.NoError(t, e.ReflectOne(context.Background(), caseID))
	want := 0.7*0.5 + 0.3*1.0
	require.NotNil(t, cases.entries[caseID].Quality)
	assert.InDelta(t, want, *cases.entries[caseID].Quality, 1e-9)
}

func TestReflectOne_NilQualitySeedsFromSuccessRate(t *testing.T) {
	caseID := uuid.New()
	logs := &fakeLogs{byCase: map[uuid.UUID][]models.ExecutionLog{caseID: makeLogs(10, 3)}}
	cases := &fakeCases{entries: map[uuid.UUID]*models.CaseBankEntry{caseID: {CaseID: caseID}}}
	e := NewEngine(logs, cases, DefaultConfig())

	require.NoError(t, e.ReflectOne(context.Background(), caseID))
	assert.InDelta(t, 0.3, *cases.entries[caseID].Quality, 1e-9)
}

func TestReflectAll_CollectsErrorsWithoutAborting(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	logs := &fakeLogs{
		caseIDs: []uuid.UUID{good, bad},
		byCase: map[uuid.UUID][]models.ExecutionLog{
			good: makeLogs(10, 10),
			bad:  makeLogs(10, 5),
		},
	}
	cases := &fakeCases{
		entries: map[uuid.UUID]*models.CaseBankEntry{good: {CaseID: good}, bad: {CaseID: bad}},
		failGet: map[uuid.UUID]bool{bad: true},
	}
	e := NewEngine(logs, cases, DefaultConfig())

	err := e.ReflectAll(context.Background())
	require.Error(t, err)
	var partial *models.BatchPartialError
	require.True(t, errors.As(err, &partial))
	assert.NotNil(t, cases.entries[good].Quality)
}
