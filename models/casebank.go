package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CaseStatus string

const (
	CaseStatusActive   CaseStatus = "active"
	CaseStatusArchived CaseStatus = "archived"
)

type ArchiveReason string

const (
	ArchiveReasonLowPerformance ArchiveReason = "low_performance"
	ArchiveReasonDuplicate      ArchiveReason = "duplicate"
	ArchiveReasonInactive       ArchiveReason = "inactive"
)

// ChunkRef is one element of a CaseBankEntry's Sources list: a pointer back to the
// evidence a cached answer was built from.
type ChunkRef struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	DocID   uuid.UUID `json:"doc_id"`
	Path    []string  `json:"path,omitempty"`
}

// ChunkRefs is the jsonb-backed `sources` column.
type ChunkRefs []ChunkRef

func (s ChunkRefs) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ChunkRefs) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into ChunkRefs", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// Vector1536 is a fixed-width embedding column. It round-trips through jsonb here
// (the real ANN-capable column type is the vector extension described in spec.md
// §6; see internal/store for the raw-SQL path that writes/reads it as `vector(1536)`
// instead of going through gorm's ORM mapping).
type Vector1536 []float32

func (v Vector1536) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (v *Vector1536) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into Vector1536", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, v)
}

// CaseBankEntry is a cached (query, answer, sources, quality) tuple the
// orchestrator can reuse to short-circuit a future identical or near-identical
// query (spec.md §3, §4.6). version is incremented on every update by
// CaseBankDAO itself (Update, SoftArchive); Migrate creates no trigger for it.
type CaseBankEntry struct {
	CaseID      uuid.UUID   `json:"case_id" gorm:"column:case_id;type:uuid;primaryKey"`
	Query       string      `json:"query" gorm:"not null"`
	Answer      string      `json:"answer" gorm:"not null"`
	Sources     ChunkRefs   `json:"sources" gorm:"type:jsonb;not null"`
	QueryVector *Vector1536 `json:"query_vector,omitempty" gorm:"type:jsonb"`
	Quality     *float64    `json:"quality"`
	UsageCount  int         `json:"usage_count" gorm:"column:usage_count;not null;default:0;check:usage_count >= 0"`
	LastUsedAt  *time.Time  `json:"last_used_at,omitempty"`
	Status      CaseStatus  `json:"status" gorm:"not null;default:active"`
	Version     int         `json:"version" gorm:"not null;default:1"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"not null;default:now()"`
	UpdatedBy   *string     `json:"updated_by,omitempty"`
}

func (CaseBankEntry) TableName() string {
	return "case_bank"
}

// CaseBankArchive is a full snapshot copy taken at the moment of soft-archive,
// matching the case_bank_archive table in spec.md §6.
type CaseBankArchive struct {
	ArchiveID      int64         `json:"archive_id" gorm:"column:archive_id;primaryKey;autoIncrement"`
	CaseID         uuid.UUID     `json:"case_id" gorm:"column:case_id;type:uuid;not null"`
	Query          string        `json:"query"`
	Answer         string        `json:"answer"`
	Sources        ChunkRefs     `json:"sources" gorm:"type:jsonb"`
	Quality        *float64      `json:"quality"`
	UsageCount     int           `json:"usage_count"`
	ArchivedReason ArchiveReason `json:"archived_reason" gorm:"column:archived_reason;not null"`
	ArchivedAt     time.Time     `json:"archived_at" gorm:"column:archived_at;not null;default:now()"`
}

func (CaseBankArchive) TableName() string {
	return "case_bank_archive"
}

// CasePatch is a partial update applied by update(case_id, patch) (spec.md §4.6).
// Nil fields are left untouched.
type CasePatch struct {
	Answer     *string
	Quality    *float64
	UsageDelta int
	LastUsedAt *time.Time
	UpdatedBy  *string
}

// ExecutionLog is an append-only record of one pipeline run, feeding the
// reflection engine (spec.md §4.7, §6).
type ExecutionLog struct {
	LogID           int64      `json:"log_id" gorm:"column:log_id;primaryKey;autoIncrement"`
	CaseID          *uuid.UUID `json:"case_id,omitempty" gorm:"column:case_id;type:uuid"`
	Success         bool       `json:"success" gorm:"not null"`
	ErrorType       *string    `json:"error_type,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	ExecutionTimeMs int        `json:"execution_time_ms" gorm:"column:execution_time_ms;not null"`
	Context         JSONMap    `json:"context" gorm:"type:jsonb"`
	CreatedAt       time.Time  `json:"created_at" gorm:"not null;default:now()"`
}

func (ExecutionLog) TableName() string {
	return "execution_log"
}
