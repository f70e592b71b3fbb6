package core_test

import (
	"context"
	"testing"

	"chequebook/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter struct {
	last int64
}

func (f fixedCounter) GetCounter(ctx context.Context, branchID int64) (*core.BranchSerialCounter, error) {
	return &core.BranchSerialCounter{BranchID: branchID, LastSerial: f.last, Exists: f.last > 0}, nil
}

func ptr(v int64) *int64 { return &v }

func TestSerialAllocator_AllocateRange(t *testing.T) {
	ctx := context.Background()
	var a core.SerialAllocator

	cases := []struct {
		name        string
		last        int64
		units       int64
		customStart *int64
		want        core.SerialRange
	}{
		{"fresh branch starts at one", 0, 50, nil, core.SerialRange{First: 1, Last: 50}},
		{"continues after counter", 50, 10, nil, core.SerialRange{First: 51, Last: 60}},
		{"custom start below counter", 500, 5, ptr(10), core.SerialRange{First: 10, Last: 14}},
		{"custom start above counter", 5, 5, ptr(1000), core.SerialRange{First: 1000, Last: 1004}},
		{"single unit", 0, 1, nil, core.SerialRange{First: 1, Last: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, counter, err := a.AllocateRange(ctx, fixedCounter{tc.last}, 7, tc.units, tc.customStart)
			require.NoError(t, err)
			assert.Equal(t, tc.want, r)
			assert.Equal(t, tc.last, counter.LastSerial, "allocation must not mutate the counter")
		})
	}
}

func TestSerialAllocator_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	var a core.SerialAllocator

	_, _, err := a.AllocateRange(ctx, fixedCounter{}, 1, 0, nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, _, err = a.AllocateRange(ctx, fixedCounter{}, 1, 5, ptr(0))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, _, err = a.AllocateRange(ctx, fixedCounter{last: core.MaxSerial - 2}, 1, 5, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAdvance_NeverRegresses(t *testing.T) {
	c := core.BranchSerialCounter{BranchID: 1, LastSerial: 500, Exists: true}

	next := core.Advance(c, core.SerialRange{First: 10, Last: 14}, ptr(10))
	assert.Equal(t, int64(500), next.LastSerial)
	require.NotNil(t, next.CustomStartSerial)
	assert.Equal(t, int64(10), *next.CustomStartSerial)

	next = core.Advance(next, core.SerialRange{First: 501, Last: 600}, nil)
	assert.Equal(t, int64(600), next.LastSerial)
	assert.Equal(t, int64(10), *next.CustomStartSerial, "audit copy survives auto allocations")
}

func TestSerialRange_Overlaps(t *testing.T) {
	existing := core.SerialRange{First: 100, Last: 199}
	assert.True(t, existing.Overlaps(core.SerialRange{First: 150, Last: 250}))
	assert.True(t, existing.Overlaps(core.SerialRange{First: 50, Last: 100}))
	assert.True(t, existing.Overlaps(core.SerialRange{First: 1, Last: 1000}))
	assert.True(t, existing.Overlaps(core.SerialRange{First: 120, Last: 130}))
	assert.False(t, existing.Overlaps(core.SerialRange{First: 200, Last: 300}))
	assert.False(t, existing.Overlaps(core.SerialRange{First: 1, Last: 99}))
}
