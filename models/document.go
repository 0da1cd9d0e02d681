package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Document is created by ingestion and never mutated in place. Deletes are
// out-of-scope for the core (spec.md §3); the core only ever reads and inserts.
type Document struct {
	DocID       uuid.UUID `json:"doc_id" gorm:"column:doc_id;type:uuid;primaryKey"`
	Title       string    `json:"title" gorm:"not null"`
	ContentType string    `json:"content_type" gorm:"not null"`
	Checksum    string    `json:"checksum" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:now()"`
	SourceURL   *string   `json:"source_url,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

// JSONMap is a generic jsonb column for untyped chunk/case metadata. The
// on-the-wire encoding is delegated to gorm.io/datatypes.JSON (the teacher's
// jsonb column type, e.g. models/agent.go's NotebookIDs/Tags/Skills fields)
// rather than writing Value/Scan against []byte directly, since the map
// shape is more convenient to the callers that build these literals inline
// (orchestrator.go's execution-log Context, e.g.) than a raw datatypes.JSON.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw).Value()
}

func (m *JSONMap) Scan(value interface{}) error {
	var raw datatypes.JSON
	if err := raw.Scan(value); err != nil {
		return err
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Chunk is one ordinal slice of a Document's text, already PII-masked by an
// out-of-scope ingestion collaborator (spec.md §1).
type Chunk struct {
	ChunkID  uuid.UUID `json:"chunk_id" gorm:"column:chunk_id;type:uuid;primaryKey"`
	DocID    uuid.UUID `json:"doc_id" gorm:"column:doc_id;type:uuid;not null;index"`
	Ordinal  int       `json:"ordinal" gorm:"not null"`
	Text     string    `json:"text" gorm:"not null"`
	Metadata JSONMap   `json:"metadata,omitempty" gorm:"type:jsonb"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// Embedding holds the unit-length vector for one chunk. At most one per chunk,
// enforced by UPSERT on chunk_id (spec.md §3).
type Embedding struct {
	ChunkID   uuid.UUID `json:"chunk_id" gorm:"column:chunk_id;type:uuid;primaryKey"`
	Vec       []float32 `json:"vec" gorm:"-"` // stored via the vector extension, not gorm-managed
	ModelName string    `json:"model_name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (Embedding) TableName() string {
	return "embeddings"
}

// DocTaxonomy represents "this document was classified under that node, at that
// taxonomy version, with that confidence" (spec.md §3). No surrogate ID: the
// composite key IS the identity.
type DocTaxonomy struct {
	DocID        uuid.UUID   `json:"doc_id" gorm:"column:doc_id;type:uuid;primaryKey"`
	NodeID       uuid.UUID   `json:"node_id" gorm:"column:node_id;type:uuid;primaryKey"`
	Version      string      `json:"version" gorm:"primaryKey"`
	Path         StringSlice `json:"path" gorm:"type:jsonb;not null"`
	Confidence   float64     `json:"confidence" gorm:"not null"`
	HITLRequired bool        `json:"hitl_required" gorm:"column:hitl_required;not null;default:false"`
	CreatedAt    time.Time   `json:"created_at" gorm:"not null;default:now()"`
}

func (DocTaxonomy) TableName() string {
	return "doc_taxonomy"
}

// HITLItem is a review-queue entry created when the classifier's top-1 confidence
// falls below HITLConfidenceThreshold.
type HITLItem struct {
	ItemID     uuid.UUID `json:"item_id" gorm:"column:item_id;type:uuid;primaryKey"`
	DocID      uuid.UUID `json:"doc_id" gorm:"column:doc_id;type:uuid;not null"`
	NodeID     uuid.UUID `json:"node_id" gorm:"column:node_id;type:uuid;not null"`
	Version    string    `json:"version" gorm:"not null"`
	Confidence float64   `json:"confidence" gorm:"not null"`
	Reviewed   bool      `json:"reviewed" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (HITLItem) TableName() string {
	return "hitl_items"
}
