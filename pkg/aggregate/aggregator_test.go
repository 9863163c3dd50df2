package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginOpensWindow(t *testing.T) {
	a := New(2)
	a.Begin("20240310", 9, "09:05")

	row := a.Row()
	assert.Equal(t, 9, row.Hour)
	assert.Equal(t, "09:05", row.FirstTransaction)
	assert.Equal(t, "09.00-10.00", row.Window())

	// Until a transaction commits, the first-transaction time follows the
	// newest header: the window may have been opened by a report block.
	a.Begin("20240310", 9, "09:10")
	assert.Equal(t, "09:10", row.FirstTransaction)

	// Once committed, it is pinned.
	row.CustomerCount = 1
	a.Begin("20240310", 9, "09:30")
	assert.Equal(t, "09:10", row.FirstTransaction, "first transaction time must not move after a commit")
}

func TestSnapshotRevertRoundTrip(t *testing.T) {
	a := New(2)
	a.Begin("20240310", 9, "09:05")

	row := a.Row()
	row.TotalTakings = 2.50
	row.Cash = 2.50
	row.PLU[1] = 2.50
	row.CustomerCount = 1
	row.LastTransaction = "09:05"

	before := row.Clone()
	a.Snapshot()

	// A second transaction mutates the row, then gets cancelled.
	row.TotalTakings += 1.00
	row.PLU[0] += 1.00
	row.CustomerCount++

	require.True(t, a.Revert())
	assert.Equal(t, before, *a.Row(), "revert must restore the pre-transaction row exactly")
	assert.Nil(t, a.Shadow(), "snapshot is consumed by revert")
}

func TestRevertWithoutSnapshot(t *testing.T) {
	a := New(1)
	assert.False(t, a.Revert())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	a := New(1)
	a.Begin("20240310", 9, "09:05")
	a.Snapshot()

	a.Row().PLU[0] = 5.00
	require.True(t, a.Revert())
	assert.Equal(t, 0.0, a.Row().PLU[0], "mutating the row must not leak into the shadow")
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name         string
		row          Row
		wantTakings  float64
		wantCards    float64
	}{
		{
			name:        "balanced row untouched",
			row:         Row{TotalTakings: 2.50, Cash: 2.50, CreditCards: 0},
			wantTakings: 2.50,
			wantCards:   0,
		},
		{
			name:        "missing card line falls back to cash",
			row:         Row{TotalTakings: 5.00, Cash: 3.00, CreditCards: 0},
			wantTakings: 3.00,
			wantCards:   0,
		},
		{
			name:        "card total absorbs the difference",
			row:         Row{TotalTakings: 5.00, Cash: 3.00, CreditCards: 1.00},
			wantTakings: 5.00,
			wantCards:   2.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.row.Reconcile()
			assert.InDelta(t, tt.wantTakings, tt.row.TotalTakings, 1e-9)
			assert.InDelta(t, tt.wantCards, tt.row.CreditCards, 1e-9)
			assert.InDelta(t, tt.row.TotalTakings, tt.row.Cash+tt.row.CreditCards, 1e-8,
				"reconciled row must conserve money")
		})
	}
}

func TestWorth(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		expected bool
	}{
		{"takings and customers", Row{TotalTakings: 2.50, CustomerCount: 1}, true},
		{"zero takings", Row{TotalTakings: 0, CustomerCount: 3}, false},
		{"zero customers", Row{TotalTakings: 9.99, CustomerCount: 0}, false},
		{"empty", Row{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.row.Worth())
		})
	}
}

func TestRestoreFitsCatalogDrift(t *testing.T) {
	a := New(3)
	a.Restore(Row{Hour: 9, PLU: []float64{1.0}}, nil)
	assert.Len(t, a.Row().PLU, 3)
	assert.Equal(t, 1.0, a.Row().PLU[0])

	a.Restore(Row{Hour: 9, PLU: []float64{1, 2, 3, 4, 5}}, nil)
	assert.Len(t, a.Row().PLU, 3)
}
