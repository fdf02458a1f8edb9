package api

import (
	"cmp"
	"slices"
	"sync"

	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

// Board keeps the latest result of every era finished by this process.
type Board struct {
	mu      sync.RWMutex
	results map[era.Period]worker.EraResult
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{results: make(map[era.Period]worker.EraResult)}
}

// Record stores res, replacing any earlier result of the same era.
func (b *Board) Record(res worker.EraResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[res.Era] = res
}

// RecordAll stores every result.
func (b *Board) RecordAll(results []worker.EraResult) {
	for _, res := range results {
		b.Record(res)
	}
}

// Get returns the latest result of period.
func (b *Board) Get(period era.Period) (worker.EraResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res, ok := b.results[period]
	return res, ok
}

// List returns every result in chronological era order.
func (b *Board) List() []worker.EraResult {
	b.mu.RLock()
	out := make([]worker.EraResult, 0, len(b.results))
	for _, res := range b.results {
		out = append(out, res)
	}
	b.mu.RUnlock()
	slices.SortFunc(out, func(x, y worker.EraResult) int {
		return cmp.Compare(x.Era.From, y.Era.From)
	})
	return out
}

func failedOnly(results []worker.EraResult) []worker.EraResult {
	out := make([]worker.EraResult, 0, len(results))
	for _, res := range results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}
