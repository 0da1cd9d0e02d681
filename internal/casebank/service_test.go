package casebank

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/models"
)

type fakeDAO struct {
	entries map[uuid.UUID]*models.CaseBankEntry
	updates []models.CasePatch
	archive []models.ArchiveReason
}

func newFakeDAO() *fakeDAO {
	return &fakeDAO{entries: make(map[uuid.UUID]*models.CaseBankEntry)}
}

func (f *fakeDAO) Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error) {
	e, ok := f.entries[caseID]
	if !ok {
		return nil, models.NewValidationError("not found")
	}
	return e, nil
}

func (f *fakeDAO) FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error) {
	for _, e := range f.entries {
		if e.Query == query {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeDAO) ActiveWithVectors(ctx context.Context) ([]models.CaseBankEntry, error) {
	return nil, nil
}

func (f *fakeDAO) FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error) {
	return nil, nil
}

func (f *fakeDAO) Insert(ctx context.Context, entry *models.CaseBankEntry) error {
	if entry.CaseID == uuid.Nil {
		entry.CaseID = uuid.New()
	}
	f.entries[entry.CaseID] = entry
	return nil
}

func (f *fakeDAO) Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error {
	f.updates = append(f.updates, patch)
	e, ok := f.entries[caseID]
	if !ok {
		return models.NewValidationError("not found")
	}
	e.UsageCount += patch.UsageDelta
	if patch.LastUsedAt != nil {
		e.LastUsedAt = patch.LastUsedAt
	}
	return nil
}

func (f *fakeDAO) SoftArchive(ctx context.Context, caseID uuid.UUID, reason models.ArchiveReason) error {
	f.archive = append(f.archive, reason)
	e, ok := f.entries[caseID]
	if !ok {
		return models.NewValidationError("not found")
	}
	e.Status = models.CaseStatusArchived
	return nil
}

func (f *fakeDAO) Restore(ctx context.Context, caseID uuid.UUID) error {
	e, ok := f.entries[caseID]
	if !ok {
		return models.NewValidationError("not found")
	}
	e.Status = models.CaseStatusActive
	return nil
}

func (f *fakeDAO) List(ctx context.Context, status models.CaseStatus, limit int, orderBy string) ([]models.CaseBankEntry, error) {
	var out []models.CaseBankEntry
	for _, e := range f.entries {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func TestService_InsertThenGet(t *testing.T) {
	dao := newFakeDAO()
	s := NewService(dao)

	entry := &models.CaseBankEntry{Query: "what is rag", Answer: "retrieval augmented generation"}
	require.NoError(t, s.Insert(context.Background(), entry))
	assert.NotEqual(t, uuid.Nil, entry.CaseID)

	got, err := s.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "what is rag", got.Query)
}

func TestService_RecordUsageBumpsCountAndTimestamp(t *testing.T) {
	dao := newFakeDAO()
	s := NewService(dao)
	entry := &models.CaseBankEntry{Query: "q"}
	require.NoError(t, s.Insert(context.Background(), entry))

	now := time.Now()
	require.NoError(t, s.RecordUsage(context.Background(), entry.CaseID, now))

	got, err := s.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	require.NotNil(t, got.LastUsedAt)
}

func TestService_SoftArchiveTransitionsStatus(t *testing.T) {
	dao := newFakeDAO()
	s := NewService(dao)
	entry := &models.CaseBankEntry{Query: "q", Status: models.CaseStatusActive}
	require.NoError(t, s.Insert(context.Background(), entry))

	require.NoError(t, s.SoftArchive(context.Background(), entry.CaseID, models.ArchiveReasonInactive))
	got, err := s.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusArchived, got.Status)

	require.NoError(t, s.Restore(context.Background(), entry.CaseID))
	got, err = s.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusActive, got.Status)
}

func TestService_FindByExactQueryReturnsNilWithoutErrorWhenAbsent(t *testing.T) {
	dao := newFakeDAO()
	s := NewService(dao)
	got, err := s.FindByExactQuery(context.Background(), "never inserted")
	require.NoError(t, err)
	assert.Nil(t, got)
}
