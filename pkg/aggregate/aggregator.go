package aggregate

// Aggregator owns the current hourly row and its shadow copy. Only one
// transaction is in flight at a time, so a single snapshot slot suffices.
type Aggregator struct {
	row      Row
	shadow   *Row
	pluCount int
}

// New creates an Aggregator sized to the PLU catalog.
func New(pluCount int) *Aggregator {
	return &Aggregator{row: NewRow(pluCount), pluCount: pluCount}
}

// Row exposes the mutable hourly row.
func (a *Aggregator) Row() *Row {
	return &a.row
}

// Begin opens the hour window if the row is empty. FirstTransaction keeps
// tracking the newest header until a transaction commits: a window opened
// by a report block must not pin the first-transaction time.
func (a *Aggregator) Begin(day string, hour int, hhmm string) {
	if a.row.Empty() {
		a.row.Day = day
		a.row.Hour = hour
		a.row.FirstTransaction = hhmm
		return
	}
	if a.row.CustomerCount == 0 {
		a.row.FirstTransaction = hhmm
	}
}

// Snapshot takes the pre-transaction shadow copy, replacing any previous
// one. Called when a header announces that a transaction may begin.
func (a *Aggregator) Snapshot() {
	shadow := a.row.Clone()
	a.shadow = &shadow
}

// Revert restores the row from the shadow copy, undoing everything the
// in-flight transaction applied, its customer count included. Reports
// whether a shadow was available.
func (a *Aggregator) Revert() bool {
	if a.shadow == nil {
		return false
	}
	a.row = a.shadow.Clone()
	a.shadow = nil
	return true
}

// Shadow exposes the current snapshot for checkpointing, nil when none.
func (a *Aggregator) Shadow() *Row {
	return a.shadow
}

// Restore replaces the aggregator state wholesale, used when resuming
// from a checkpoint. The PLU slice is resized defensively in case the
// catalog changed between runs.
func (a *Aggregator) Restore(row Row, shadow *Row) {
	a.row = fit(row, a.pluCount)
	a.shadow = nil
	if shadow != nil {
		s := fit(*shadow, a.pluCount)
		a.shadow = &s
	}
}

// Clear zeroes the row and drops the snapshot.
func (a *Aggregator) Clear() {
	a.row = NewRow(a.pluCount)
	a.shadow = nil
}

func fit(row Row, pluCount int) Row {
	c := row.Clone()
	switch {
	case len(c.PLU) > pluCount:
		c.PLU = c.PLU[:pluCount]
	case len(c.PLU) < pluCount:
		padded := make([]float64, pluCount)
		copy(padded, c.PLU)
		c.PLU = padded
	}
	return c
}
