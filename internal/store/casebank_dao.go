package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// CaseBankDAO implements the operations in spec.md §4.6 directly against
// Postgres (the agent-builder teacher's equivalent, LongTermMemoryServiceImpl,
// goes through an HTTP-backed vector API; this spec pins an exact schema so the
// DAO talks to the database directly instead).
type CaseBankDAO struct {
	db *gorm.DB
}

func NewCaseBankDAO(s *Store) *CaseBankDAO {
	return &CaseBankDAO{db: s.db}
}

func (d *CaseBankDAO) Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error) {
	var entry models.CaseBankEntry
	err := d.db.WithContext(ctx).Where("case_id = ?", caseID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewValidationError("case not found")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to load case", err)
	}
	return &entry, nil
}

// FindByExactQuery supports the respond step's "no identical case exists (by
// query exact ...)" check (spec.md §4.12 step 7).
func (d *CaseBankDAO) FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error) {
	var entry models.CaseBankEntry
	err := d.db.WithContext(ctx).Where("query = ? AND status = ?", query, models.CaseStatusActive).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError("failed to search case bank by query", err)
	}
	return &entry, nil
}

func (d *CaseBankDAO) ActiveWithVectors(ctx context.Context) ([]models.CaseBankEntry, error) {
	var entries []models.CaseBankEntry
	err := d.db.WithContext(ctx).
		Where("status = ? AND query_vector IS NOT NULL", models.CaseStatusActive).
		Find(&entries).Error
	if err != nil {
		return nil, models.NewInternalError("failed to load active cases", err)
	}
	return entries, nil
}

// FindSimilar implements find_similar(query_vector, top_n, min_quality) from
// spec.md §4.6. Cosine similarity is computed in Go rather than pushed to SQL
// since Vector1536 round-trips through jsonb in this DAO (see models.Vector1536);
// a production deployment binds this query to the vector extension's operator
// instead.
func (d *CaseBankDAO) FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error) {
	entries, err := d.ActiveWithVectors(ctx)
	if err != nil {
		return nil, err
	}
	type scored struct {
		entry models.CaseBankEntry
		sim   float64
	}
	var candidates []scored
	for _, e := range entries {
		if e.Quality == nil || *e.Quality < minQuality {
			continue
		}
		sim := cosineSimilarity(queryVector, []float32(*e.QueryVector))
		candidates = append(candidates, scored{entry: e, sim: sim})
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].sim > candidates[i].sim {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	out := make([]models.CaseBankEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Insert creates a new case bank entry. Paired with an execution log insert in
// the orchestrator's "insert case + insert execution log" transaction (spec.md §5).
func (d *CaseBankDAO) Insert(ctx context.Context, entry *models.CaseBankEntry) error {
	if entry.CaseID == uuid.Nil {
		entry.CaseID = uuid.New()
	}
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.Status == "" {
		entry.Status = models.CaseStatusActive
	}
	if err := d.db.WithContext(ctx).Create(entry).Error; err != nil {
		return models.NewDataIntegrityError("failed to insert case bank entry", err)
	}
	return nil
}

// Update applies patch and bumps version and updated_at itself (spec.md §6's
// version rule); Migrate creates no database trigger for this, so the bump
// happens here on every driver.
func (d *CaseBankDAO) Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CaseBankEntry
		if err := tx.Where("case_id = ?", caseID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewValidationError("case not found")
			}
			return models.NewInternalError("failed to load case for update", err)
		}

		updates := map[string]any{
			"version":    entry.Version + 1,
			"updated_at": time.Now(),
		}
		if patch.Answer != nil {
			updates["answer"] = *patch.Answer
		}
		if patch.Quality != nil {
			updates["quality"] = *patch.Quality
		}
		if patch.UsageDelta != 0 {
			updates["usage_count"] = entry.UsageCount + patch.UsageDelta
			if entry.UsageCount+patch.UsageDelta < 0 {
				return models.NewInternalError("usage_count invariant violated", nil)
			}
		}
		if patch.LastUsedAt != nil {
			updates["last_used_at"] = *patch.LastUsedAt
		}
		if patch.UpdatedBy != nil {
			updates["updated_by"] = *patch.UpdatedBy
		}

		if err := tx.Model(&models.CaseBankEntry{}).Where("case_id = ?", caseID).Updates(updates).Error; err != nil {
			return models.NewInternalError("failed to update case", err)
		}
		return nil
	})
}

// SoftArchive snapshots the case into case_bank_archive and flips status,
// matching spec.md §4.6's archive side-table invariant.
func (d *CaseBankDAO) SoftArchive(ctx context.Context, caseID uuid.UUID, reason models.ArchiveReason) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CaseBankEntry
		if err := tx.Where("case_id = ?", caseID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewValidationError("case not found")
			}
			return models.NewInternalError("failed to load case for archive", err)
		}

		archive := models.CaseBankArchive{
			CaseID:         entry.CaseID,
			Query:          entry.Query,
			Answer:         entry.Answer,
			Sources:        entry.Sources,
			Quality:        entry.Quality,
			UsageCount:     entry.UsageCount,
			ArchivedReason: reason,
			ArchivedAt:     time.Now(),
		}
		if err := tx.Create(&archive).Error; err != nil {
			return models.NewInternalError("failed to write archive snapshot", err)
		}

		if err := tx.Model(&models.CaseBankEntry{}).Where("case_id = ?", caseID).
			Updates(map[string]any{
				"status":     models.CaseStatusArchived,
				"version":    entry.Version + 1,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return models.NewInternalError("failed to flip status to archived", err)
		}
		return nil
	})
}

// Restore reverses SoftArchive for consolidation_restore (spec.md §6).
func (d *CaseBankDAO) Restore(ctx context.Context, caseID uuid.UUID) error {
	res := d.db.WithContext(ctx).Model(&models.CaseBankEntry{}).
		Where("case_id = ? AND status = ?", caseID, models.CaseStatusArchived).
		Updates(map[string]any{
			"status":     models.CaseStatusActive,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return models.NewInternalError("failed to restore case", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewValidationError("case not found or not archived")
	}
	return nil
}

func (d *CaseBankDAO) List(ctx context.Context, status models.CaseStatus, limit int, orderBy string) ([]models.CaseBankEntry, error) {
	q := d.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if orderBy == "" {
		orderBy = "updated_at desc"
	}
	q = q.Order(orderBy)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.CaseBankEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, models.NewInternalError("failed to list cases", err)
	}
	return entries, nil
}
