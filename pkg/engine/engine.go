// Package engine reconstructs discrete transactions from the normalized
// chunk stream and routes their effects into the hourly aggregate. It is
// the state machine at the center of the agent: everything else feeds it
// or drains it.
package engine

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pitstone-retail/ecr-sync/pkg/aggregate"
	"github.com/pitstone-retail/ecr-sync/pkg/catalog"
	"github.com/pitstone-retail/ecr-sync/pkg/checkpoint"
	"github.com/pitstone-retail/ecr-sync/pkg/dispatch"
	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
	"github.com/pitstone-retail/ecr-sync/pkg/output"
)

// machineState tracks where in a printout block the parser sits.
type machineState int

const (
	// stateOther suppresses parsing until the next header. It is the
	// initial state and the landing state for reports, refunds and
	// diagnostics.
	stateOther machineState = iota
	stateHeader
	stateTransaction
	stateFooter
)

func (s machineState) String() string {
	switch s {
	case stateHeader:
		return "header"
	case stateTransaction:
		return "transaction"
	case stateFooter:
		return "footer"
	default:
		return "other"
	}
}

func parseState(v string) machineState {
	switch v {
	case "header":
		return stateHeader
	case "transaction":
		return stateTransaction
	case "footer":
		return stateFooter
	default:
		return stateOther
	}
}

// Options configures an Engine.
type Options struct {
	Dialect       normalize.Dialect
	Currency      string
	SingleItemCap float64
	QuietSeconds  int

	Catalog     *catalog.Catalog
	Sink        output.Sink
	Checkpoints *checkpoint.Store // nil disables crash recovery (replay)
	Logger      *slog.Logger
	Now         func() time.Time // nil means time.Now
}

// Engine owns the aggregator, the parser state, the normalizer's one-slot
// buffer and the output resources. The run loop drives it one chunk at a
// time; nothing here is safe for concurrent use.
type Engine struct {
	dialect  normalize.Dialect
	currency string
	itemCap  float64
	quiet    time.Duration

	cat  *catalog.Catalog
	agg  *aggregate.Aggregator
	norm *normalize.Normalizer
	disp *dispatch.Dispatcher
	sink output.Sink
	ckpt *checkpoint.Store
	log  *slog.Logger
	now  func() time.Time

	state      machineState
	eventValid bool
	// awaitChange suppresses the 520's pseudo-headers interleaved into an
	// active transaction; it clears when the CHANGE line arrives.
	awaitChange bool
	eventTime   string // HH:MM of the current printout block
	currentPLU  int    // catalog index of the most recent item, -1 none
	cardAmount  float64

	lastActivity time.Time
}

// New creates an Engine. Catalog and Sink are required.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	currency := opts.Currency
	if currency == "" {
		currency = "£"
	}
	itemCap := opts.SingleItemCap
	if itemCap == 0 {
		itemCap = 200
	}
	quiet := opts.QuietSeconds
	if quiet == 0 {
		quiet = 1200
	}

	return &Engine{
		dialect:      opts.Dialect,
		currency:     currency,
		itemCap:      itemCap,
		quiet:        time.Duration(quiet) * time.Second,
		cat:          opts.Catalog,
		agg:          aggregate.New(opts.Catalog.Len()),
		norm:         normalize.New(opts.Dialect, currency),
		disp:         dispatch.New(opts.Dialect),
		sink:         opts.Sink,
		ckpt:         opts.Checkpoints,
		log:          logger,
		now:          now,
		state:        stateOther,
		currentPLU:   -1,
		lastActivity: now(),
	}
}

// Restore resumes from a checkpoint written in the current clock hour, if
// one exists. Stale checkpoints are deleted either way. Reports whether
// state was restored.
func (e *Engine) Restore() (bool, error) {
	if e.ckpt == nil {
		return false, nil
	}

	hour := e.now().Hour()
	st, err := e.ckpt.Load(hour)
	if err != nil {
		e.ckpt.Sweep(-1)
		return false, err
	}
	if st == nil || st.Row.Day != e.now().Format("20060102") {
		if err := e.ckpt.Sweep(-1); err != nil {
			return false, err
		}
		return false, nil
	}

	e.agg.Restore(st.Row, st.Shadow)
	e.state = parseState(st.Machine)
	e.eventTime = st.EventTime
	e.eventValid = st.EventValid
	e.awaitChange = st.AwaitChange
	e.currentPLU = st.CurrentPLU
	e.cardAmount = st.CardAmount
	e.lastActivity = e.now()

	// The file is consumed; the next mutation writes a fresh one.
	if err := e.ckpt.Sweep(-1); err != nil {
		return true, err
	}
	return true, nil
}

// Process normalizes one raw chunk and runs each canonical sub-chunk
// through the state machine.
func (e *Engine) Process(raw string) {
	for _, chunk := range e.norm.Normalize(raw) {
		e.handle(chunk)
	}
}

// DrainPending processes the normalizer's queued synthetic sub-chunk, if
// any. The run loop calls this before reading a new chunk so the 520's
// CASH-then-CHANGE order is preserved.
func (e *Engine) DrainPending() {
	if chunk, ok := e.norm.TakePending(); ok {
		e.handle(chunk)
	}
}

func (e *Engine) handle(chunk string) {
	kind := e.disp.Classify(chunk)
	switch kind {
	case dispatch.KindHeader:
		e.onHeader(chunk)
	case dispatch.KindFooter:
		if e.state == stateTransaction {
			e.state = stateFooter
		}
	case dispatch.KindReport, dispatch.KindRefund, dispatch.KindDiagnostic:
		e.log.Debug("non-transaction block", "kind", kind.String(), "chunk", chunk)
		e.state = stateOther
		e.eventValid = false
		e.awaitChange = false
	case dispatch.KindCancel, dispatch.KindReprint:
		e.onRevert(kind)
	case dispatch.KindNoSale:
		e.agg.Row().NoSale++
		e.touch()
		e.save()
	default:
		e.onLine(chunk)
	}
}

// onHeader starts a new printout block: it extracts the event clock,
// flushes on hour rollover, and arms a fresh snapshot.
func (e *Engine) onHeader(chunk string) {
	if e.awaitChange && e.state == stateTransaction {
		// 520 pseudo-header inside an active transaction.
		return
	}

	hhmm, hour := e.eventClock(chunk)
	if hour < 0 {
		e.log.Info("malformed header dropped", "chunk", chunk)
		return
	}

	e.state = stateHeader
	e.eventValid = true
	e.currentPLU = -1
	e.cardAmount = 0
	e.eventTime = hhmm

	row := e.agg.Row()
	if !row.Empty() && hour != row.Hour {
		e.flush("hour rollover")
	}

	// Snapshot before the window opens, so cancelling the first
	// transaction of an hour reverts to a genuinely empty row.
	e.agg.Snapshot()
	e.agg.Begin(e.now().Format("20060102"), hour, hhmm)
	e.touch()
	e.save()
}

// onRevert handles CANCEL and REPRINT: the in-flight transaction's
// effects, customer count included, are undone via the snapshot, and the
// rest of the block is ignored.
func (e *Engine) onRevert(kind dispatch.Kind) {
	if e.state != stateHeader && e.state != stateTransaction {
		return
	}
	if e.agg.Revert() {
		e.log.Info("transaction reverted", "kind", kind.String())
	}
	e.eventValid = false
	e.awaitChange = false
	e.currentPLU = -1
	e.cardAmount = 0
	e.save()
}

// onLine routes a candidate transaction line. The first line carrying the
// currency symbol (or an AMOUNT discount) moves a header into an active
// transaction.
func (e *Engine) onLine(chunk string) {
	if !e.eventValid || e.state == stateOther || e.state == stateFooter {
		return
	}

	if e.state == stateHeader {
		if !e.isTransactionLine(chunk) {
			return
		}
		e.state = stateTransaction
		if e.dialect == normalize.Dialect520 {
			e.awaitChange = true
		}
	}

	e.parseLine(chunk)
}

func (e *Engine) isTransactionLine(chunk string) bool {
	return containsCurrency(chunk, e.currency) || hasKey(chunk, "AMOUNT")
}

// Dump writes the current row and machine state to the diagnostic sink.
// Safe to call between loop iterations only.
func (e *Engine) Dump(w io.Writer) {
	row := e.agg.Row()
	fmt.Fprintf(w, "state=%s valid=%t window=%s\n", e.state, e.eventValid, row.Window())
	fmt.Fprintln(w, output.FormatRow(row))
}

func (e *Engine) touch() {
	e.lastActivity = e.now()
}

// save checkpoints the full parser context after a mutation. A write
// failure is logged and the pipeline continues; the next successful write
// replaces the file.
func (e *Engine) save() {
	if e.ckpt == nil {
		return
	}
	row := e.agg.Row()
	if row.Empty() {
		return
	}

	st := &checkpoint.State{
		Hour:        row.Hour,
		SavedAt:     e.now().Format(time.RFC3339),
		Row:         row.Clone(),
		Shadow:      e.agg.Shadow(),
		Machine:     e.state.String(),
		EventTime:   e.eventTime,
		EventValid:  e.eventValid,
		AwaitChange: e.awaitChange,
		CurrentPLU:  e.currentPLU,
		CardAmount:  e.cardAmount,
	}
	if err := e.ckpt.Save(st); err != nil {
		e.log.Warn("checkpoint write failed", "error", err)
	}
}
