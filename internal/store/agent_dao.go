package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tas-rag-core/models"
)

// AgentDAO is the exclusive owner of Agent mutation (spec.md §3).
type AgentDAO struct {
	db *gorm.DB
}

func NewAgentDAO(s *Store) *AgentDAO {
	return &AgentDAO{db: s.db}
}

func (d *AgentDAO) Create(ctx context.Context, agent *models.Agent) error {
	if err := d.db.WithContext(ctx).Create(agent).Error; err != nil {
		return models.NewDataIntegrityError("failed to create agent", err)
	}
	return nil
}

func (d *AgentDAO) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	err := d.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewValidationError("agent not found")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to load agent", err)
	}
	return &agent, nil
}

func (d *AgentDAO) UpdateCoverage(ctx context.Context, agentID uuid.UUID, coveragePercent float64, totalDocs, totalChunks int) error {
	res := d.db.WithContext(ctx).Model(&models.Agent{}).Where("agent_id = ?", agentID).
		Updates(map[string]any{
			"coverage_percent": coveragePercent,
			"total_documents":  totalDocs,
			"total_chunks":     totalChunks,
		})
	if res.Error != nil {
		return models.NewInternalError("failed to update agent coverage", res.Error)
	}
	return nil
}
