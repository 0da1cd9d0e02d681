package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// newTestStore opens an in-memory sqlite database migrated with the same
// AutoMigrate call production uses, isolating each test's rows without a
// real postgres instance (store.go's OpenWith exists for exactly this).
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s := OpenWith(db)
	require.NoError(t, s.Migrate())
	return s
}

func newTestCase(t *testing.T, query string) *models.CaseBankEntry {
	t.Helper()
	return &models.CaseBankEntry{
		CaseID:  uuid.New(),
		Query:   query,
		Answer:  "an answer",
		Sources: models.ChunkRefs{{ChunkID: uuid.New(), DocID: uuid.New()}},
	}
}

func TestCaseBankDAO_InsertAndGetRoundTrips(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "what is retrieval augmented generation")

	require.NoError(t, dao.Insert(context.Background(), entry))

	got, err := dao.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, entry.Query, got.Query)
	assert.Equal(t, models.CaseStatusActive, got.Status)
	assert.Equal(t, 1, got.Version)
}

func TestCaseBankDAO_FindByExactQueryOnlyMatchesActive(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "exact query text")
	require.NoError(t, dao.Insert(context.Background(), entry))

	found, err := dao.FindByExactQuery(context.Background(), "exact query text")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.CaseID, found.CaseID)

	require.NoError(t, dao.SoftArchive(context.Background(), entry.CaseID, models.ArchiveReasonInactive))
	found, err = dao.FindByExactQuery(context.Background(), "exact query text")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCaseBankDAO_UpdateBumpsVersionAndAppliesPatch(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "q")
	require.NoError(t, dao.Insert(context.Background(), entry))

	quality := 0.8
	now := time.Now()
	err := dao.Update(context.Background(), entry.CaseID, models.CasePatch{
		Quality:    &quality,
		UsageDelta: 1,
		LastUsedAt: &now,
	})
	require.NoError(t, err)

	got, err := dao.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.Quality)
	assert.InDelta(t, 0.8, *got.Quality, 1e-9)
	assert.Equal(t, 1, got.UsageCount)
}

func TestCaseBankDAO_UpdateRejectsNegativeUsageCount(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "q")
	require.NoError(t, dao.Insert(context.Background(), entry))

	err := dao.Update(context.Background(), entry.CaseID, models.CasePatch{UsageDelta: -1})
	assert.Error(t, err)
}

func TestCaseBankDAO_SoftArchiveWritesSnapshotAndFlipsStatus(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "q")
	require.NoError(t, dao.Insert(context.Background(), entry))

	require.NoError(t, dao.SoftArchive(context.Background(), entry.CaseID, models.ArchiveReasonDuplicate))

	got, err := dao.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusArchived, got.Status)

	active, err := dao.List(context.Background(), models.CaseStatusActive, 0, "")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCaseBankDAO_RestoreReversesSoftArchive(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "q")
	require.NoError(t, dao.Insert(context.Background(), entry))
	require.NoError(t, dao.SoftArchive(context.Background(), entry.CaseID, models.ArchiveReasonLowPerformance))

	require.NoError(t, dao.Restore(context.Background(), entry.CaseID))

	got, err := dao.Get(context.Background(), entry.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusActive, got.Status)
}

func TestCaseBankDAO_RestoreFailsWhenNotArchived(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))
	entry := newTestCase(t, "q")
	require.NoError(t, dao.Insert(context.Background(), entry))

	err := dao.Restore(context.Background(), entry.CaseID)
	assert.Error(t, err)
}

func TestCaseBankDAO_FindSimilarFiltersByQualityAndRanksByCosine(t *testing.T) {
	dao := NewCaseBankDAO(newTestStore(t))

	highQuality := 0.9
	lowQuality := 0.1
	closeVec := models.Vector1536{1, 0, 0}
	farVec := models.Vector1536{0, 1, 0}

	closeMatch := newTestCase(t, "close match")
	closeMatch.QueryVector = &closeVec
	closeMatch.Quality = &highQuality
	require.NoError(t, dao.Insert(context.Background(), closeMatch))

	farMatch := newTestCase(t, "far match")
	farMatch.QueryVector = &farVec
	farMatch.Quality = &highQuality
	require.NoError(t, dao.Insert(context.Background(), farMatch))

	belowThreshold := newTestCase(t, "low quality")
	belowThreshold.QueryVector = &closeVec
	belowThreshold.Quality = &lowQuality
	require.NoError(t, dao.Insert(context.Background(), belowThreshold))

	results, err := dao.FindSimilar(context.Background(), []float32{1, 0, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, closeMatch.CaseID, results[0].CaseID)
}
