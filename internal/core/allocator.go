package core

import (
	"context"
	"fmt"
)

// MaxSerial is the largest serial that fits the 9-digit printed field.
const MaxSerial int64 = 999_999_999

// SerialRange is a closed interval [First, Last] of instrument numbers.
type SerialRange struct {
	First int64 `json:"first_serial"`
	Last  int64 `json:"last_serial"`
}

// Len returns the number of serials in the range.
func (r SerialRange) Len() int64 { return r.Last - r.First + 1 }

func (r SerialRange) String() string { return fmt.Sprintf("%d-%d", r.First, r.Last) }

// Overlaps is the inclusive interval intersection test. It covers a candidate
// that starts inside, ends inside, contains or is contained by the other range.
func (r SerialRange) Overlaps(o SerialRange) bool {
	return r.First <= o.Last && o.First <= r.Last
}

// Contains reports whether o lies entirely inside r.
func (r SerialRange) Contains(o SerialRange) bool {
	return o.First >= r.First && o.Last <= r.Last
}

// Validate rejects malformed ranges and serials the printed field cannot hold.
func (r SerialRange) Validate() error {
	if r.First < 1 {
		return validationf("first serial must be >= 1, got %d", r.First)
	}
	if r.Last < r.First {
		return validationf("last serial %d is before first serial %d", r.Last, r.First)
	}
	if r.Last > MaxSerial {
		return validationf("last serial %d exceeds the maximum printable serial %d", r.Last, MaxSerial)
	}
	return nil
}

// SerialAllocator proposes contiguous ranges from a branch counter. It never
// writes: the coordinator commits the proposal after overlap validation inside
// the same transaction.
type SerialAllocator struct{}

// AllocateRange proposes [first, first+unitCount-1] where first is customStart
// when given and lastSerial+1 otherwise.
func (SerialAllocator) AllocateRange(ctx context.Context, counters CounterReader, branchID, unitCount int64, customStart *int64) (SerialRange, *BranchSerialCounter, error) {
	if unitCount < 1 {
		return SerialRange{}, nil, validationf("unit count must be >= 1, got %d", unitCount)
	}
	if customStart != nil && *customStart < 1 {
		return SerialRange{}, nil, validationf("custom start serial must be >= 1, got %d", *customStart)
	}

	counter, err := counters.GetCounter(ctx, branchID)
	if err != nil {
		return SerialRange{}, nil, fmt.Errorf("failed to read serial counter for branch %d: %w", branchID, err)
	}

	first := counter.LastSerial + 1
	if customStart != nil {
		first = *customStart
	}
	if unitCount > MaxSerial || first > MaxSerial-unitCount+1 {
		return SerialRange{}, nil, validationf("range of %d units starting at %d exceeds the maximum printable serial %d",
			unitCount, first, MaxSerial)
	}

	r := SerialRange{First: first, Last: first + unitCount - 1}
	return r, counter, nil
}

// Advance returns the counter after committing r. The counter never regresses:
// a custom range ending below lastSerial leaves it unchanged.
func Advance(counter BranchSerialCounter, r SerialRange, customStart *int64) BranchSerialCounter {
	next := counter
	if r.Last > next.LastSerial {
		next.LastSerial = r.Last
	}
	if customStart != nil {
		next.CustomStartSerial = int64Ptr(*customStart)
	}
	next.Exists = true
	return next
}
