// Package dagcache maintains, per taxonomy version, an in-memory DAG built from
// TaxonomyNode rows and answers descendants / membership / path-resolution
// queries (spec.md §4.3).
package dagcache

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tas-rag-core/models"
)

// DAG is one immutable snapshot of a taxonomy version.
type DAG struct {
	Version  string
	nodes    map[uuid.UUID]models.TaxonomyNode
	children map[uuid.UUID][]uuid.UUID
	byPath   map[string]uuid.UUID
	root     uuid.UUID
}

func pathKey(path []string) string {
	return strings.Join(path, "\x1f")
}

// Build validates acyclicity and a single root, then constructs the DAG.
// Returns a DataIntegrity error if validation fails.
func Build(version string, nodes []models.TaxonomyNode) (*DAG, error) {
	d := &DAG{
		Version:  version,
		nodes:    make(map[uuid.UUID]models.TaxonomyNode, len(nodes)),
		children: make(map[uuid.UUID][]uuid.UUID),
		byPath:   make(map[string]uuid.UUID, len(nodes)),
	}

	var roots []uuid.UUID
	for _, n := range nodes {
		d.nodes[n.NodeID] = n
		d.byPath[pathKey(n.CanonicalPath)] = n.NodeID
		if n.ParentID == nil {
			roots = append(roots, n.NodeID)
		}
	}
	for _, n := range nodes {
		if n.ParentID != nil {
			d.children[*n.ParentID] = append(d.children[*n.ParentID], n.NodeID)
		}
	}

	if len(roots) != 1 {
		return nil, models.NewDataIntegrityError("taxonomy version must have exactly one root", nil)
	}
	d.root = roots[0]

	if err := d.checkAcyclic(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DAG) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int, len(d.nodes))
	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		color[id] = gray
		for _, c := range d.children[id] {
			switch color[c] {
			case gray:
				return models.NewDataIntegrityError("taxonomy version contains a cycle", nil)
			case white:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range d.nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Descendants returns the set of node IDs reachable from nodeIDs, including the
// inputs themselves (spec.md §4.3).
func (d *DAG) Descendants(nodeIDs []uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	var visit func(id uuid.UUID)
	visit = func(id uuid.UUID) {
		if _, ok := out[id]; ok {
			return
		}
		out[id] = struct{}{}
		for _, c := range d.children[id] {
			visit(c)
		}
	}
	for _, id := range nodeIDs {
		visit(id)
	}
	return out
}

// IsDescendantOf reports whether ancestorPath is a prefix of candidatePath,
// element-wise (spec.md §4.3).
func IsDescendantOf(candidatePath, ancestorPath []string) bool {
	return models.PathIsPrefixOf(ancestorPath, candidatePath)
}

// ResolvePath looks up the node whose canonical path equals path exactly.
// Returns TaxonomyPathNotFound when absent — the orchestrator must not
// silently insert a node for it (spec.md §4.3).
func (d *DAG) ResolvePath(path []string) (uuid.UUID, error) {
	id, ok := d.byPath[pathKey(path)]
	if !ok {
		return uuid.Nil, models.NewTaxonomyPathNotFound(path, d.Version)
	}
	return id, nil
}

func (d *DAG) Node(id uuid.UUID) (models.TaxonomyNode, bool) {
	n, ok := d.nodes[id]
	return n, ok
}
