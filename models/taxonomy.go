package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StringSlice is a []string stored as a JSON array in a jsonb column, following the jsonb Value/Scan
// idiom the teacher uses for its AgentLLMConfig column (models/agent.go), adapted
// here for a plain array column rather than a struct.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into StringSlice", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// TaxonomyNode is one node of a versioned, immutable classification DAG. A given
// version's node set never changes after it is written; new versions are created
// wholesale and the DAG cache (internal/dagcache) keys on version.
type TaxonomyNode struct {
	NodeID        uuid.UUID   `json:"node_id" gorm:"column:node_id;type:uuid;primaryKey"`
	Label         string      `json:"label" gorm:"not null"`
	CanonicalPath StringSlice `json:"canonical_path" gorm:"column:canonical_path;type:jsonb;not null"`
	Version       string      `json:"version" gorm:"not null;index:idx_taxonomy_version"`
	Confidence    float64     `json:"confidence" gorm:"not null"`
	ParentID      *uuid.UUID  `json:"parent_id,omitempty" gorm:"column:parent_id;type:uuid"`
}

func (TaxonomyNode) TableName() string {
	return "taxonomy_nodes"
}

// PathEquals reports whether two canonical paths are element-wise identical.
func PathEquals(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PathIsPrefixOf reports whether ancestor is a prefix of candidate, element-wise.
// This is the definition of is_descendant_of in spec.md §4.3.
func PathIsPrefixOf(ancestor, candidate []string) bool {
	if len(ancestor) > len(candidate) {
		return false
	}
	for i := range ancestor {
		if ancestor[i] != candidate[i] {
			return false
		}
	}
	return true
}
