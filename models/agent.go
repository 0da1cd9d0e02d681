package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetrievalConfig holds the per-agent hybrid-retrieval tuning knobs (spec.md
// §4.2): the fusion weights and fetch size. Stored as jsonb on the Agent row,
// following the teacher's AgentLLMConfig Value/Scan idiom (models/agent.go).
type RetrievalConfig struct {
	WeightBM25        float64 `json:"weight_bm25"`
	WeightVector      float64 `json:"weight_vector"`
	TopKDefault       int     `json:"top_k_default"`
	ConfiguredFetch   int     `json:"configured_fetch"`
	RerankEnabled     bool    `json:"rerank_enabled"`
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		WeightBM25:      0.3,
		WeightVector:    0.7,
		TopKDefault:     5,
		ConfiguredFetch: 20,
		RerankEnabled:   false,
	}
}

func (c RetrievalConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *RetrievalConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into RetrievalConfig", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// FeaturesConfig stores per-agent flags for the optional pipeline steps,
// mirroring the process-wide FEATURE_* env flags (spec.md §6). The
// orchestrator gates steps on the process-wide flags only; this column is
// stored but not read.
type FeaturesConfig struct {
	Debate            bool `json:"debate"`
	MetaPlan          bool `json:"meta_plan"`
	Tools             bool `json:"tools"`
	AdaptiveStrategy  bool `json:"adaptive_strategy"`
}

func (c FeaturesConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *FeaturesConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into FeaturesConfig", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// UUIDSlice backs the agents.taxonomy_node_ids column (GIN-indexed uuid[] in
// spec.md §6).
type UUIDSlice []uuid.UUID

func (s UUIDSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *UUIDSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into UUIDSlice", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// Agent is a scoped view onto the corpus, defined by a set of taxonomy nodes plus
// retrieval/feature configuration (spec.md §3, GLOSSARY). Exclusively owned by the
// AgentDAO; nothing else mutates it directly.
type Agent struct {
	AgentID          uuid.UUID       `json:"agent_id" gorm:"column:agent_id;type:uuid;primaryKey"`
	Name             string          `json:"name" gorm:"not null"`
	TaxonomyNodeIDs  UUIDSlice       `json:"taxonomy_node_ids" gorm:"column:taxonomy_node_ids;type:jsonb;not null"`
	TaxonomyVersion  string          `json:"taxonomy_version" gorm:"not null"`
	Level            int             `json:"level" gorm:"not null;default:1;check:level between 1 and 10"`
	CurrentXP        int             `json:"current_xp" gorm:"column:current_xp;not null;default:0;check:current_xp >= 0"`
	CoveragePercent  float64         `json:"coverage_percent" gorm:"not null;default:0;check:coverage_percent >= 0 and coverage_percent <= 100"`
	TotalDocuments   int             `json:"total_documents" gorm:"not null;default:0"`
	TotalChunks      int             `json:"total_chunks" gorm:"not null;default:0"`
	RetrievalConfig  RetrievalConfig `json:"retrieval_config" gorm:"column:retrieval_config;type:jsonb;not null"`
	FeaturesConfig   FeaturesConfig  `json:"features_config" gorm:"column:features_config;type:jsonb;not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null;default:now()"`
}

func (Agent) TableName() string {
	return "agents"
}

// CreateAgentRequest is the wire-shape input to create_agent (spec.md §6). It
// deliberately excludes level/xp/coverage/total_* — those are derived, not
// caller-supplied.
type CreateAgentRequest struct {
	Name            string      `json:"name" validate:"required,min=1,max=255"`
	TaxonomyNodeIDs []uuid.UUID `json:"taxonomy_node_ids" validate:"required"`
	TaxonomyVersion string      `json:"taxonomy_version" validate:"required"`
	RetrievalConfig *RetrievalConfig `json:"retrieval_config,omitempty"`
	FeaturesConfig  *FeaturesConfig  `json:"features_config,omitempty"`
}
