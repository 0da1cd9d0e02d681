package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// HITLDAO is owned by the classifier (spec.md §3: "Owned by the classifier").
type HITLDAO struct {
	db *gorm.DB
}

func NewHITLDAO(s *Store) *HITLDAO {
	return &HITLDAO{db: s.db}
}

func (d *HITLDAO) Enqueue(ctx context.Context, item *models.HITLItem) error {
	if item.ItemID == uuid.Nil {
		item.ItemID = uuid.New()
	}
	if err := d.db.WithContext(ctx).Create(item).Error; err != nil {
		return models.NewDataIntegrityError("failed to enqueue HITL item", err)
	}
	return nil
}

func (d *HITLDAO) Pending(ctx context.Context, limit int) ([]models.HITLItem, error) {
	q := d.db.WithContext(ctx).Where("reviewed = ?", false).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []models.HITLItem
	if err := q.Find(&items).Error; err != nil {
		return nil, models.NewInternalError("failed to load HITL queue", err)
	}
	return items, nil
}
