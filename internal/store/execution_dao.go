package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// ExecutionDAO is append-only, matching spec.md §3's ExecutionLog entity.
type ExecutionDAO struct {
	db *gorm.DB
}

func NewExecutionDAO(s *Store) *ExecutionDAO {
	return &ExecutionDAO{db: s.db}
}

func (d *ExecutionDAO) Insert(ctx context.Context, log *models.ExecutionLog) error {
	if err := d.db.WithContext(ctx).Create(log).Error; err != nil {
		return models.NewDataIntegrityError("failed to insert execution log", err)
	}
	return nil
}

// InsertCaseAndLog performs the "insert case + insert execution log" pair as one
// transaction, per spec.md §5.
func (d *ExecutionDAO) InsertCaseAndLog(ctx context.Context, caseEntry *models.CaseBankEntry, log *models.ExecutionLog) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if caseEntry.CaseID == uuid.Nil {
			caseEntry.CaseID = uuid.New()
		}
		if caseEntry.Version == 0 {
			caseEntry.Version = 1
		}
		if caseEntry.Status == "" {
			caseEntry.Status = models.CaseStatusActive
		}
		if err := tx.Create(caseEntry).Error; err != nil {
			return models.NewDataIntegrityError("failed to insert case bank entry", err)
		}
		caseID := caseEntry.CaseID
		log.CaseID = &caseID
		if err := tx.Create(log).Error; err != nil {
			return models.NewDataIntegrityError("failed to insert execution log", err)
		}
		return nil
	})
}

// LastNForCase fetches the most recent N execution logs for a case, ordered
// newest first, feeding the reflection engine's success-rate aggregation
// (spec.md §4.7).
func (d *ExecutionDAO) LastNForCase(ctx context.Context, caseID uuid.UUID, n int) ([]models.ExecutionLog, error) {
	var logs []models.ExecutionLog
	err := d.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at desc").
		Limit(n).
		Find(&logs).Error
	if err != nil {
		return nil, models.NewInternalError("failed to load execution logs", err)
	}
	return logs, nil
}

func (d *ExecutionDAO) DistinctCaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Model(&models.ExecutionLog{}).
		Distinct("case_id").
		Where("case_id IS NOT NULL").
		Pluck("case_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError("failed to list distinct case ids", err)
	}
	return ids, nil
}
