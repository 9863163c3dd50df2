package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitstone-retail/ecr-sync/pkg/aggregate"
	"github.com/pitstone-retail/ecr-sync/pkg/catalog"
	"github.com/pitstone-retail/ecr-sync/pkg/checkpoint"
	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
	"github.com/pitstone-retail/ecr-sync/pkg/pathutil"
)

// recordingSink captures flushed rows for assertions.
type recordingSink struct {
	rows []aggregate.Row
}

func (s *recordingSink) Append(row *aggregate.Row) error {
	s.rows = append(s.rows, row.Clone())
	return nil
}

func (s *recordingSink) Close() error { return nil }

type clock struct {
	at time.Time
}

func (c *clock) now() time.Time { return c.at }

func testClock() *clock {
	return &clock{at: time.Date(2024, 3, 10, 9, 5, 12, 0, time.Local)}
}

func newTestEngine(t *testing.T, dialect normalize.Dialect, c *clock) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e := New(Options{
		Dialect: dialect,
		Catalog: catalog.FromNames([]string{"Bread", "Coffee"}),
		Sink:    sink,
		Now:     c.now,
	})
	return e, sink
}

func feed(e *Engine, chunks ...string) {
	for _, chunk := range chunks {
		e.DrainPending()
		e.Process(chunk)
	}
	e.DrainPending()
}

var happyPath420 = []string{
	"10/03/2024 09:05:12",
	"Coffee        £2.50",
	"TOTAL         £2.50",
	"CASH          £5.00",
	"CHANGE        £2.50",
	"CLERK 01",
}

func assertS1Row(t *testing.T, row aggregate.Row) {
	t.Helper()
	assert.Equal(t, "09.00-10.00", row.Window())
	assert.InDelta(t, 2.50, row.TotalTakings, 1e-9)
	assert.InDelta(t, 2.50, row.Cash, 1e-9)
	assert.InDelta(t, 0.00, row.CreditCards, 1e-9)
	assert.InDelta(t, 0.00, row.PLU[0], 1e-9)
	assert.InDelta(t, 2.50, row.PLU[1], 1e-9)
	assert.Equal(t, 1, row.CustomerCount)
	assert.Equal(t, "09:05", row.FirstTransaction)
	assert.Equal(t, "09:05", row.LastTransaction)
	assert.Equal(t, 0, row.NoSale)
}

func TestS1HappyPath420(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, happyPath420...)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

func TestS2CancelReverses(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, happyPath420...)
	feed(e,
		"10/03/2024 09:07:00",
		"Bread         £1.00",
		"CANCEL",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

func TestS3CardAndHourRollover(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e,
		"10/03/2024 09:55:00",
		"Bread         £1.00",
		"TOTAL         £1.00",
		"CARD          £1.00",
		"CLERK 01",
		"10/03/2024 10:05:00",
		"Coffee        £2.00",
		"TOTAL         £2.00",
		"CASH          £2.00",
		"CHANGE        £0.00",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 2)

	first := sink.rows[0]
	assert.Equal(t, "09.00-10.00", first.Window())
	assert.InDelta(t, 1.00, first.TotalTakings, 1e-9)
	assert.InDelta(t, 0.00, first.Cash, 1e-9)
	assert.InDelta(t, 1.00, first.CreditCards, 1e-9)
	assert.InDelta(t, 1.00, first.PLU[0], 1e-9)
	assert.Equal(t, 1, first.CustomerCount)
	assert.Equal(t, "09:55", first.FirstTransaction)
	assert.Equal(t, "09:55", first.LastTransaction)

	second := sink.rows[1]
	assert.Equal(t, "10.00-11.00", second.Window())
	assert.InDelta(t, 2.00, second.TotalTakings, 1e-9)
	assert.InDelta(t, 2.00, second.Cash, 1e-9)
	assert.InDelta(t, 0.00, second.CreditCards, 1e-9)
	assert.InDelta(t, 2.00, second.PLU[1], 1e-9)
	assert.Equal(t, 1, second.CustomerCount)
	assert.Equal(t, "10:05", second.FirstTransaction)
	assert.Equal(t, "10:05", second.LastTransaction)
}

func TestS4OverCapRejection(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e,
		"10/03/2024 12:00:00",
		"Coffee        £999.99",
		"TOTAL         £2.00",
		"CASH          £2.00",
		"CHANGE        £0.00",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, "12.00-13.00", row.Window())
	assert.InDelta(t, 2.00, row.TotalTakings, 1e-9)
	assert.InDelta(t, 2.00, row.Cash, 1e-9)
	assert.InDelta(t, 0.00, row.PLU[1], 1e-9, "the over-cap item must not reach the PLU totals")
	assert.Equal(t, 1, row.CustomerCount)
	assert.Equal(t, "12:00", row.FirstTransaction)
}

func TestS5NoSaleOnlyYieldsNoRow(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, "NOSALE", "NOSALE", "NOSALE")
	e.EnterIdle()

	assert.Empty(t, sink.rows, "an hour of drawer-opens has zero takings")
}

func TestNoSaleCountedAlongsideTransactions(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, "NOSALE")
	feed(e, happyPath420...)
	feed(e, "NOSALE")
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assert.Equal(t, 2, sink.rows[0].NoSale)
}

func TestS6CashChangeSplit520(t *testing.T) {
	c := &clock{at: time.Date(2024, 3, 10, 14, 32, 0, 0, time.Local)}
	e, sink := newTestEngine(t, normalize.Dialect520, c)

	feed(e,
		"REGISTER MODE",
		"Coffee  2.00  CASH  5.00  CHANGE  3.00",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, "14.00-15.00", row.Window())
	assert.InDelta(t, 2.00, row.TotalTakings, 1e-9)
	assert.InDelta(t, 2.00, row.Cash, 1e-9)
	assert.InDelta(t, 2.00, row.PLU[1], 1e-9)
	assert.Equal(t, 1, row.CustomerCount)
	assert.Equal(t, "14:32", row.FirstTransaction)
	assert.Equal(t, "14:32", row.LastTransaction)
}

func Test520IgnoresPseudoHeadersMidTransaction(t *testing.T) {
	c := &clock{at: time.Date(2024, 3, 10, 14, 32, 0, 0, time.Local)}
	e, sink := newTestEngine(t, normalize.Dialect520, c)

	feed(e,
		"REGISTER MODE",
		"Coffee  2.00",
		"REGISTER MODE", // pseudo-header: must not reset the transaction
		"Bread  1.00",
		"CASH  5.00  CHANGE  2.00",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.InDelta(t, 3.00, row.TotalTakings, 1e-9)
	assert.InDelta(t, 2.00, row.PLU[1], 1e-9)
	assert.InDelta(t, 1.00, row.PLU[0], 1e-9)
	assert.Equal(t, 1, row.CustomerCount)
}

func TestReprintIsIdempotent(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, happyPath420...)
	// The device reprints the same block, flagged REPRINT after its header.
	feed(e,
		"10/03/2024 09:06:00",
		"** REPRINT **",
		"Coffee        £2.50",
		"TOTAL         £2.50",
		"CASH          £5.00",
		"CHANGE        £2.50",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

func TestReprintAfterLinesReverts(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e, happyPath420...)
	feed(e,
		"10/03/2024 09:06:00",
		"Coffee        £2.50",
		"TOTAL         £2.50",
		"** REPRINT **",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

func TestChangeAfterCardCorrection(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	// The cashier keyed CARD, then gave change: the tender was cash.
	feed(e,
		"10/03/2024 09:05:12",
		"Coffee        £2.50",
		"TOTAL         £2.50",
		"CARD          £2.50",
		"CHANGE        £0.00",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.InDelta(t, 2.50, row.TotalTakings, 1e-9)
	assert.InDelta(t, 2.50, row.Cash, 1e-9)
	assert.InDelta(t, 0.00, row.CreditCards, 1e-9)
}

func TestDiscountReducesItemTotal(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e,
		"10/03/2024 09:05:12",
		"Coffee        £2.50",
		"AMOUNT        £-0.50",
		"TOTAL         £2.00",
		"CASH          £2.00",
		"CHANGE        £0.00",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assert.InDelta(t, 2.00, sink.rows[0].PLU[1], 1e-9)
}

func TestUnknownPLUDropped(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e,
		"10/03/2024 09:05:12",
		"Sandwich      £3.00",
		"Coffee        £2.50",
		"TOTAL         £2.50",
		"CASH          £2.50",
		"CHANGE        £0.00",
		"CLERK 01",
	)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.InDelta(t, 0.00, row.PLU[0], 1e-9)
	assert.InDelta(t, 2.50, row.PLU[1], 1e-9)
}

func TestReportSuppressesUntilNextHeader(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())

	feed(e,
		"10/03/2024 09:00:00",
		"Z1 REPORT 0042",
		"Coffee        £2.50", // report body: must not be parsed
		"TOTAL       £100.00",
		"CLERK 01",
	)
	feed(e, happyPath420...)
	e.EnterIdle()

	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

func TestQuietClockFlush(t *testing.T) {
	c := testClock()
	sink := &recordingSink{}
	e := New(Options{
		Dialect:      normalize.Dialect420,
		Catalog:      catalog.FromNames([]string{"Bread", "Coffee"}),
		Sink:         sink,
		Now:          c.now,
		QuietSeconds: 600,
	})

	feed(e, happyPath420...)

	// Still inside the window: nothing to do.
	c.at = time.Date(2024, 3, 10, 9, 59, 0, 0, time.Local)
	e.CheckQuietFlush()
	assert.Empty(t, sink.rows)

	// Clock rolled past the hour but the register is still active: a
	// drawer-open at 10:01 refreshes the activity clock.
	c.at = time.Date(2024, 3, 10, 10, 1, 0, 0, time.Local)
	feed(e, "NOSALE")
	c.at = time.Date(2024, 3, 10, 10, 3, 0, 0, time.Local)
	e.CheckQuietFlush()
	assert.Empty(t, sink.rows)

	// Quiet for longer than the threshold: the hour flushes.
	c.at = time.Date(2024, 3, 10, 10, 20, 0, 0, time.Local)
	e.CheckQuietFlush()
	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, "09.00-10.00", row.Window())
	assert.InDelta(t, 2.50, row.TotalTakings, 1e-9)
	assert.Equal(t, 1, row.NoSale)

	// A second check must not emit the hour again.
	e.CheckQuietFlush()
	assert.Len(t, sink.rows, 1)
}

func TestCheckpointReplayEquivalence(t *testing.T) {
	// Property: a stream interrupted after an arbitrary chunk and resumed
	// within the same clock hour from the checkpoint emits the same row
	// as the uninterrupted stream.
	stream := append([]string{}, happyPath420...)

	uninterrupted, usink := newTestEngine(t, normalize.Dialect420, testClock())
	feed(uninterrupted, stream...)
	uninterrupted.EnterIdle()
	require.Len(t, usink.rows, 1)

	for cut := 1; cut < len(stream); cut++ {
		paths := pathutil.New(pathutil.Config{DataDir: t.TempDir()})
		store := checkpoint.NewStore(paths)
		c := testClock()

		sink1 := &recordingSink{}
		e1 := New(Options{
			Dialect:     normalize.Dialect420,
			Catalog:     catalog.FromNames([]string{"Bread", "Coffee"}),
			Sink:        sink1,
			Checkpoints: store,
			Now:         c.now,
		})
		feed(e1, stream[:cut]...)
		// Power loss here: e1 is abandoned without a flush.

		sink2 := &recordingSink{}
		e2 := New(Options{
			Dialect:     normalize.Dialect420,
			Catalog:     catalog.FromNames([]string{"Bread", "Coffee"}),
			Sink:        sink2,
			Checkpoints: store,
			Now:         c.now,
		})
		restored, err := e2.Restore()
		require.NoError(t, err)
		require.True(t, restored, "cut at %d should leave a checkpoint", cut)

		feed(e2, stream[cut:]...)
		e2.EnterIdle()

		require.Len(t, sink2.rows, 1, "cut at %d", cut)
		assert.Equal(t, usink.rows[0], sink2.rows[0], "cut at %d", cut)
	}
}

func TestRestoreIgnoresStaleCheckpoint(t *testing.T) {
	paths := pathutil.New(pathutil.Config{DataDir: t.TempDir()})
	store := checkpoint.NewStore(paths)

	// A checkpoint from yesterday's 09:00 hour.
	row := aggregate.NewRow(2)
	row.Day = "20240309"
	row.Hour = 9
	row.TotalTakings = 9.99
	require.NoError(t, store.Save(&checkpoint.State{Hour: 9, Row: row, Machine: "footer"}))

	c := testClock()
	sink := &recordingSink{}
	e := New(Options{
		Dialect:     normalize.Dialect420,
		Catalog:     catalog.FromNames([]string{"Bread", "Coffee"}),
		Sink:        sink,
		Checkpoints: store,
		Now:         c.now,
	})

	restored, err := e.Restore()
	require.NoError(t, err)
	assert.False(t, restored)

	// The stale file is gone.
	st, err := store.Load(9)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestDumpIsNonDestructive(t *testing.T) {
	e, sink := newTestEngine(t, normalize.Dialect420, testClock())
	feed(e, happyPath420...)

	var buf testWriter
	e.Dump(&buf)
	assert.Contains(t, buf.String(), "09.00-10.00")

	e.EnterIdle()
	require.Len(t, sink.rows, 1)
	assertS1Row(t, sink.rows[0])
}

type testWriter struct {
	data []byte
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *testWriter) String() string { return string(w.data) }
