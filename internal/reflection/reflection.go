// Package reflection implements C7: updating a case's quality score from its
// recent execution history (spec.md §4.7). It never touches the request
// path — it only reads ExecutionLog rows and writes CaseBankEntry.quality.
package reflection

import (
	"context"

	"github.com/google/uuid"

	"github.com/tas-rag-core/models"
)

const (
	DefaultMinSamples = 10
	DefaultAlpha      = 0.7
	DefaultWindow     = 50
)

// LogSource is the subset of store.ExecutionDAO the reflection engine needs.
type LogSource interface {
	LastNForCase(ctx context.Context, caseID uuid.UUID, n int) ([]models.ExecutionLog, error)
	DistinctCaseIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CaseStore is the subset of the case bank the engine needs to read the
// current quality and persist the updated one.
type CaseStore interface {
	Get(ctx context.Context, caseID uuid.UUID) (*models.CaseBankEntry, error)
	Update(ctx context.Context, caseID uuid.UUID, patch models.CasePatch) error
}

// Config tunes the EMA update (spec.md §9 Open Question: alpha is
// configurable with the stated default).
type Config struct {
	MinSamples int
	Alpha      float64
	Window     int
}

func DefaultConfig() Config {
	return Config{MinSamples: DefaultMinSamples, Alpha: DefaultAlpha, Window: DefaultWindow}
}

// Engine implements C7.
type Engine struct {
	logs  LogSource
	cases CaseStore
	cfg   Config
}

func NewEngine(logs LogSource, cases CaseStore, cfg Config) *Engine {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Engine{logs: logs, cases: cases, cfg: cfg}
}

// SuccessRate aggregates the last N ExecutionLog rows for a case
// (spec.md §4.7): successes/total, or ok=false (rate 0, nil error) if fewer
// than min_samples rows exist.
func (e *Engine) SuccessRate(ctx context.Context, caseID uuid.UUID) (rate float64, ok bool, err error) {
	logs, err := e.logs.LastNForCase(ctx, caseID, e.cfg.Window)
	if err != nil {
		return 0, false, err
	}
	if len(logs) < e.cfg.MinSamples {
		return 0, false, nil
	}
	var successes int
	for _, l := range logs {
		if l.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(logs)), true, nil
}

// ReflectOne updates a single case's quality via the EMA from spec.md §4.7:
// quality ← α*quality + (1-α)*success_rate. A case with fewer than
// min_samples logs is left untouched; a case with no prior quality is
// seeded with the success rate.
func (e *Engine) ReflectOne(ctx context.Context, caseID uuid.UUID) error {
	rate, ok, err := e.SuccessRate(ctx, caseID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	entry, err := e.cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	var newQuality float64
	if entry.Quality == nil {
		newQuality = rate
	} else {
		newQuality = e.cfg.Alpha*(*entry.Quality) + (1-e.cfg.Alpha)*rate
	}

	return e.cases.Update(ctx, caseID, models.CasePatch{Quality: &newQuality})
}

// ReflectAll runs ReflectOne over every case with execution history,
// collecting (not aborting on) per-case errors — a scheduled sweep must not
// let one bad case stop the rest (spec.md §4.7: "must never block the
// request path").
func (e *Engine) ReflectAll(ctx context.Context) error {
	caseIDs, err := e.logs.DistinctCaseIDs(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range caseIDs {
		if err := e.ReflectOne(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &models.BatchPartialError{Errors: errs}
	}
	return nil
}
