package policy

import (
	"sort"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
)

// comparators maps each policy kind to the ordering that puts the lot to
// consume first. Built once; never mutated after init.
var comparators = map[domain.PolicyKind]func(a, b domain.Lot) bool{
	domain.PolicyFIFO: func(a, b domain.Lot) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	},
	domain.PolicyLIFO: func(a, b domain.Lot) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	},
}

// Known reports whether kind is a supported policy.
func Known(kind domain.PolicyKind) bool {
	_, ok := comparators[kind]
	return ok
}

// SelectLot picks the lot a transaction should consume from. FIFO selects
// the earliest-created lot, LIFO the latest-created. Lots sharing a creation
// timestamp are ordered by lot ID ascending so selection is deterministic.
// Read-only: the input slice is not reordered.
func SelectLot(lots []domain.Lot, kind domain.PolicyKind) (*domain.Lot, error) {
	less, ok := comparators[kind]
	if !ok {
		return nil, domain.ErrUnknownPolicy
	}
	if len(lots) == 0 {
		return nil, domain.ErrNoLotAvailable
	}

	candidates := make([]domain.Lot, len(lots))
	copy(candidates, lots)
	sort.Slice(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	chosen := candidates[0]
	return &chosen, nil
}
