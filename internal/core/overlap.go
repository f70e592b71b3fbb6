package core

import (
	"context"
	"fmt"
)

// OverlapValidator answers whether a candidate range collides with any print
// already in the ledger. Uniqueness is global: entries of every branch count.
type OverlapValidator struct{}

// HasOverlap reports whether [first, last] intersects a committed print and,
// if so, the name of the branch that printed it. exclude lets an amended
// entry be re-validated without colliding with its own row.
func (v OverlapValidator) HasOverlap(ctx context.Context, finder OverlapFinder, first, last int64, exclude *int64) (bool, string, error) {
	conflict, err := v.find(ctx, finder, SerialRange{First: first, Last: last}, exclude)
	if err != nil {
		return false, "", err
	}
	if conflict == nil {
		return false, "", nil
	}
	return true, conflict.BranchName, nil
}

// Check returns an *OverlapError describing the first collision, or nil.
func (v OverlapValidator) Check(ctx context.Context, finder OverlapFinder, r SerialRange, exclude *int64) error {
	conflict, err := v.find(ctx, finder, r, exclude)
	if err != nil {
		return err
	}
	if conflict != nil {
		return &OverlapError{CandidateFirst: r.First, CandidateLast: r.Last, Conflict: *conflict}
	}
	return nil
}

func (OverlapValidator) find(ctx context.Context, finder OverlapFinder, r SerialRange, exclude *int64) (*Conflict, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	conflict, err := finder.FindOverlap(ctx, r.First, r.Last, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger for overlapping ranges: %w", err)
	}
	return conflict, nil
}
