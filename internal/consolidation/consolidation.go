// Package consolidation implements C8: the three-phase case bank policy that
// removes low-performing cases, merges near-duplicates, and archives inactive
// ones (spec.md §4.8). Pairwise duplicate comparison fans out over a bounded
// worker pool using golang.org/x/sync/errgroup, the same fan-out primitive
// the teacher pack reaches for (grounded via Aman-CERP-amanmcp's concurrent
// batch indexing and the teacher's own worker-pool use of x/sync).
package consolidation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tas-rag-core/models"
)

const (
	phase3MaxUsageCount = 100
	recentUsageWindow   = 7 * 24 * time.Hour
	maxConcurrentPairs  = 8
)

// Store is the subset of the case bank DAO consolidation needs.
type Store interface {
	List(ctx context.Context, status models.CaseStatus, limit int, orderBy string) ([]models.CaseBankEntry, error)
	Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error
	SoftArchive(ctx context.Context, caseID uuid.UUID, reason models.ArchiveReason) error
}

// Similarity is the subset of C1's Service consolidation needs for the
// duplicate-merge phase.
type Similarity interface {
	Similarity(a, b []float32) float64
}

// Config tunes the three phases (spec.md §4.8, values sourced from
// config.ConsolidationConfig).
type Config struct {
	QualityThreshold float64 // phase 1: quality below this is a candidate
	MinUsageCount    int     // phase 1: usage_count must exceed this
	HighUsageExclude int     // phase 1 safety exclusion
	DupSimilarity    float64 // phase 2: merge threshold
	InactiveDays     int     // phase 3: staleness window
}

// Detail records one action taken (or, in dry-run, that would have been
// taken) against a case.
type Detail struct {
	CaseID uuid.UUID
	Action string // "removed" | "merged" | "archived"
	Reason models.ArchiveReason
	Note   string
}

// Report is run()'s return value.
type Report struct {
	Removed  int
	Merged   int
	Archived int
	Details  []Detail
}

// Policy implements C8.
type Policy struct {
	store Store
	sim   Similarity
	cfg   Config
}

func NewPolicy(store Store, sim Similarity, cfg Config) *Policy {
	return &Policy{store: store, sim: sim, cfg: cfg}
}

// Run executes the three phases in order (spec.md §4.8). dryRun suppresses
// all writes while still producing the same report shape.
func (p *Policy) Run(ctx context.Context, dryRun bool) (Report, error) {
	var report Report

	excluded := make(map[uuid.UUID]struct{})

	if err := p.lowPerformanceRemoval(ctx, dryRun, &report, excluded); err != nil {
		return report, err
	}
	if err := p.duplicateMerge(ctx, dryRun, &report, excluded); err != nil {
		return report, err
	}
	if err := p.inactivityArchive(ctx, dryRun, &report, excluded); err != nil {
		return report, err
	}

	return report, nil
}

// lowPerformanceRemoval is phase 1 (spec.md §4.8 step 1).
func (p *Policy) lowPerformanceRemoval(ctx context.Context, dryRun bool, report *Report, excluded map[uuid.UUID]struct{}) error {
	active, err := p.store.List(ctx, models.CaseStatusActive, 0, "")
	if err != nil {
		return err
	}

	now := time.Now()
	for _, c := range active {
		if c.Quality == nil {
			continue
		}
		if *c.Quality >= p.cfg.QualityThreshold {
			continue
		}
		if c.UsageCount <= p.cfg.MinUsageCount {
			continue
		}
		if c.UsageCount > p.cfg.HighUsageExclude {
			continue
		}
		if c.LastUsedAt != nil && now.Sub(*c.LastUsedAt) < recentUsageWindow {
			continue
		}

		if !dryRun {
			if err := p.store.SoftArchive(ctx, c.CaseID, models.ArchiveReasonLowPerformance); err != nil {
				return err
			}
		}
		excluded[c.CaseID] = struct{}{}
		report.Removed++
		report.Details = append(report.Details, Detail{CaseID: c.CaseID, Action: "removed", Reason: models.ArchiveReasonLowPerformance})
	}
	return nil
}

type pairSim struct {
	i, j int
	sim  float64
}

// duplicateMerge is phase 2 (spec.md §4.8 step 2): pairwise cosine similarity
// among active cases with a non-null query_vector, batched over a bounded
// worker pool. Each case participates in at most one merge per run.
func (p *Policy) duplicateMerge(ctx context.Context, dryRun bool, report *Report, excluded map[uuid.UUID]struct{}) error {
	active, err := p.store.List(ctx, models.CaseStatusActive, 0, "")
	if err != nil {
		return err
	}

	candidates := make([]models.CaseBankEntry, 0, len(active))
	for _, c := range active {
		if _, skip := excluded[c.CaseID]; skip {
			continue
		}
		if c.QueryVector == nil {
			continue
		}
		candidates = append(candidates, c)
	}

	pairs := make([]pairSim, 0)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentPairs)

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			i, j := i, j
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				defer func() { <-sem }()

				sim := p.sim.Similarity([]float32(*candidates[i].QueryVector), []float32(*candidates[j].QueryVector))
				if sim > p.cfg.DupSimilarity {
					mu.Lock()
					pairs = append(pairs, pairSim{i: i, j: j, sim: sim})
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Highest-similarity pairs merge first so each case locks into at most
	// one merge per run (spec.md §4.8 step 2).
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].sim > pairs[b].sim })

	merged := make(map[uuid.UUID]struct{})
	for _, pr := range pairs {
		a, b := candidates[pr.i], candidates[pr.j]
		if _, done := merged[a.CaseID]; done {
			continue
		}
		if _, done := merged[b.CaseID]; done {
			continue
		}

		keeper, remover := pickKeeper(a, b)
		newQuality := meanQuality(keeper.Quality, remover.Quality)

		if !dryRun {
			if err := p.store.Update(ctx, keeper.CaseID, models.CasePatch{
				Quality:    &newQuality,
				UsageDelta: remover.UsageCount,
			}); err != nil {
				return err
			}
			if err := p.store.SoftArchive(ctx, remover.CaseID, models.ArchiveReasonDuplicate); err != nil {
				return err
			}
		}

		merged[keeper.CaseID] = struct{}{}
		merged[remover.CaseID] = struct{}{}
		excluded[remover.CaseID] = struct{}{}
		report.Merged++
		report.Details = append(report.Details, Detail{
			CaseID: remover.CaseID, Action: "merged", Reason: models.ArchiveReasonDuplicate,
			Note: "merged into " + keeper.CaseID.String(),
		})
	}

	return nil
}

// pickKeeper applies spec.md §4.8 step 2's tie-break order: higher
// usage_count, then higher quality, then lower case_id.
func pickKeeper(a, b models.CaseBankEntry) (keeper, remover models.CaseBankEntry) {
	if a.UsageCount != b.UsageCount {
		if a.UsageCount > b.UsageCount {
			return a, b
		}
		return b, a
	}
	aq, bq := qualityOrZero(a.Quality), qualityOrZero(b.Quality)
	if aq != bq {
		if aq > bq {
			return a, b
		}
		return b, a
	}
	if a.CaseID.String() < b.CaseID.String() {
		return a, b
	}
	return b, a
}

func qualityOrZero(q *float64) float64 {
	if q == nil {
		return 0
	}
	return *q
}

func meanQuality(a, b *float64) float64 {
	return (qualityOrZero(a) + qualityOrZero(b)) / 2
}

// inactivityArchive is phase 3 (spec.md §4.8 step 3).
func (p *Policy) inactivityArchive(ctx context.Context, dryRun bool, report *Report, excluded map[uuid.UUID]struct{}) error {
	active, err := p.store.List(ctx, models.CaseStatusActive, 0, "")
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -p.cfg.InactiveDays)
	for _, c := range active {
		if _, skip := excluded[c.CaseID]; skip {
			continue
		}
		if c.LastUsedAt == nil || !c.LastUsedAt.Before(cutoff) {
			continue
		}
		if c.UsageCount >= phase3MaxUsageCount {
			continue
		}

		if !dryRun {
			if err := p.store.SoftArchive(ctx, c.CaseID, models.ArchiveReasonInactive); err != nil {
				return err
			}
		}
		excluded[c.CaseID] = struct{}{}
		report.Archived++
		report.Details = append(report.Details, Detail{CaseID: c.CaseID, Action: "archived", Reason: models.ArchiveReasonInactive})
	}
	return nil
}
