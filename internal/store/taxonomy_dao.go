package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// TaxonomyDAO is the single owner of TaxonomyNode and DocTaxonomy persistence.
type TaxonomyDAO struct {
	db *gorm.DB
}

func NewTaxonomyDAO(s *Store) *TaxonomyDAO {
	return &TaxonomyDAO{db: s.db}
}

func (d *TaxonomyDAO) NodesForVersion(ctx context.Context, version string) ([]models.TaxonomyNode, error) {
	var nodes []models.TaxonomyNode
	if err := d.db.WithContext(ctx).Where("version = ?", version).Find(&nodes).Error; err != nil {
		return nil, models.NewInternalError("failed to load taxonomy nodes", err)
	}
	return nodes, nil
}

func (d *TaxonomyDAO) NodeByID(ctx context.Context, nodeID uuid.UUID) (*models.TaxonomyNode, error) {
	var node models.TaxonomyNode
	if err := d.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewValidationError("taxonomy node not found")
		}
		return nil, models.NewInternalError("failed to load taxonomy node", err)
	}
	return &node, nil
}

// InsertDocTaxonomy is idempotent on (doc_id, node_id, version): a conflicting
// insert surfaces as a data-integrity error per spec.md §7, never silently dropped.
func (d *TaxonomyDAO) InsertDocTaxonomy(ctx context.Context, row *models.DocTaxonomy) error {
	tx := d.db.WithContext(ctx).Clauses().Create(row)
	if tx.Error != nil {
		return models.NewDataIntegrityError("failed to insert doc_taxonomy row", tx.Error)
	}
	return nil
}

// UpsertDocTaxonomy inserts or leaves an existing (doc_id, node_id, version) row
// untouched, used by the classifier (spec.md §4.5, "idempotent").
func (d *TaxonomyDAO) UpsertDocTaxonomy(ctx context.Context, row *models.DocTaxonomy) error {
	var existing models.DocTaxonomy
	err := d.db.WithContext(ctx).
		Where("doc_id = ? AND node_id = ? AND version = ?", row.DocID, row.NodeID, row.Version).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewInternalError("failed to check doc_taxonomy existence", err)
	}
	return d.InsertDocTaxonomy(ctx, row)
}

func (d *TaxonomyDAO) ClassificationsForDocs(ctx context.Context, docIDs []uuid.UUID, version string, minConfidence float64) ([]models.DocTaxonomy, error) {
	var rows []models.DocTaxonomy
	q := d.db.WithContext(ctx).Where("version = ? AND confidence >= ?", version, minConfidence)
	if len(docIDs) > 0 {
		q = q.Where("doc_id IN ?", docIDs)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, models.NewInternalError("failed to load doc_taxonomy rows", err)
	}
	return rows, nil
}

// CoverageCounts runs the single named aggregation from spec.md §4.4 step 2:
// no N+1, one GROUP BY query.
func (d *TaxonomyDAO) CoverageCounts(ctx context.Context, nodeIDs []uuid.UUID, version string, threshold float64) (map[uuid.UUID]int64, error) {
	type row struct {
		NodeID uuid.UUID
		Count  int64
	}
	var rows []row
	err := d.db.WithContext(ctx).
		Model(&models.DocTaxonomy{}).
		Select("node_id, COUNT(DISTINCT doc_id) as count").
		Where("node_id IN ? AND version = ? AND confidence >= ?", nodeIDs, version, threshold).
		Group("node_id").
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError("coverage aggregation failed", err)
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		out[r.NodeID] = r.Count
	}
	return out, nil
}
