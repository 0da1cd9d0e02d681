// Package casebank implements the C6 service layer over the case_bank /
// case_bank_archive schema (spec.md §4.6), modeled structurally on the
// teacher's LongTermMemoryServiceImpl (services/memory/long_term.go) for its
// method surface: find_similar mirrors SearchMemory, insert mirrors
// StoreMemory, soft_archive mirrors the archival-copy pattern it defers to
// consolidation.
package casebank

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tas-rag-core/models"
)

// DAO is the subset of store.CaseBankDAO the service needs.
type DAO interface {
	Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error)
	FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error)
	ActiveWithVectors(ctx context.Context) ([]models.CaseBankEntry, error)
	FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error)
	Insert(ctx context.Context, entry *models.CaseBankEntry) error
	Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error
	SoftArchive(ctx context.Context, caseID uuid.UUID, reason models.ArchiveReason) error
	Restore(ctx context.Context, caseID uuid.UUID) error
	List(ctx context.Context, status models.CaseStatus, limit int, orderBy string) ([]models.CaseBankEntry, error)
}

// Service exposes the six operations of spec.md §4.6 by name.
type Service struct {
	dao DAO
}

func NewService(dao DAO) *Service {
	return &Service{dao: dao}
}

func (s *Service) Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error) {
	return s.dao.Get(ctx, caseID)
}

// FindByExactQuery supports the respond step's exact-query dedup check before
// falling back to find_similar.
func (s *Service) FindByExactQuery(ctx context.Context, query string) (*models.CaseBankEntry, error) {
	return s.dao.FindByExactQuery(ctx, query)
}

func (s *Service) FindSimilar(ctx context.Context, queryVector []float32, topN int, minQuality float64) ([]models.CaseBankEntry, error) {
	return s.dao.FindSimilar(ctx, queryVector, topN, minQuality)
}

func (s *Service) Insert(ctx context.Context, entry *models.CaseBankEntry) error {
	return s.dao.Insert(ctx, entry)
}

func (s *Service) Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error {
	return s.dao.Update(ctx, caseID, patch)
}

func (s *Service) SoftArchive(ctx context.Context, caseID uuid.UUID, reason models.ArchiveReason) error {
	return s.dao.SoftArchive(ctx, caseID, reason)
}

func (s *Service) Restore(ctx context.Context, caseID uuid.UUID) error {
	return s.dao.Restore(ctx, caseID)
}

func (s *Service) List(ctx context.Context, status models.CaseStatus, limit int, orderBy string) ([]models.CaseBankEntry, error) {
	return s.dao.List(ctx, status, limit, orderBy)
}

// RecordUsage bumps usage_count and last_used_at for a case that was served
// as an answer (the respond step of C12).
func (s *Service) RecordUsage(ctx context.Context, caseID uuid.UUID, lastUsedAt time.Time) error {
	return s.dao.Update(ctx, caseID, models.CasePatch{UsageDelta: 1, LastUsedAt: &lastUsedAt})
}
