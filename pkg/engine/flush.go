package engine

import "github.com/pitstone-retail/ecr-sync/pkg/normalize"

// flush writes the current row, if worth writing, then clears the hour.
// Callers are responsible for the mid-transaction guard; flush enforces
// it once more as the last line of defense.
func (e *Engine) flush(reason string) {
	row := e.agg.Row()
	if row.Empty() {
		return
	}
	if e.state == stateTransaction {
		e.log.Warn("flush suppressed mid-transaction", "reason", reason)
		return
	}

	hour := row.Hour
	final := row.Clone()
	final.Reconcile()

	if final.Worth() {
		if err := e.sink.Append(&final); err != nil {
			e.log.Error("failed to write hourly row",
				"window", final.Window(), "reason", reason, "error", err)
		}
	} else {
		e.log.Info("quiescent hour discarded", "window", final.Window(), "reason", reason)
	}

	e.agg.Clear()
	if e.ckpt != nil {
		if err := e.ckpt.Delete(hour); err != nil {
			e.log.Warn("failed to delete checkpoint", "hour", hour, "error", err)
		}
	}
	e.log.Debug("hour flushed", "window", windowLabel(hour), "reason", reason)
}

// CheckQuietFlush implements the clock-based flush: the register has gone
// quiet, the clock has rolled past the window and no transaction is in
// flight. Needed for the last hour of the day, when no further header
// will arrive to observe the rollover.
func (e *Engine) CheckQuietFlush() {
	row := e.agg.Row()
	if row.Empty() || e.state == stateTransaction {
		return
	}

	now := e.now()
	// Integer hour comparison: across midnight this never fires, but the
	// business-hours gate closes the day well before then.
	if now.Hour() <= row.Hour {
		return
	}
	if now.Sub(e.lastActivity) < e.quiet {
		return
	}

	e.flush("quiet rollover")
}

// EnterIdle flushes whatever the day left behind, deletes all checkpoints
// and releases the output file. Called when the business-hours gate
// closes; the engine comes back cold at opening.
func (e *Engine) EnterIdle() {
	if e.state != stateTransaction {
		e.flush("closing time")
	} else {
		e.log.Warn("closing with a transaction in flight; state discarded")
		e.agg.Clear()
	}

	e.state = stateOther
	e.eventValid = false
	e.awaitChange = false
	e.currentPLU = -1
	e.cardAmount = 0
	// A fresh normalizer drops any queued synthetic sub-chunk.
	e.norm = normalize.New(e.dialect, e.currency)

	if e.ckpt != nil {
		if err := e.ckpt.Sweep(-1); err != nil {
			e.log.Warn("failed to sweep checkpoints", "error", err)
		}
	}
	if err := e.sink.Close(); err != nil {
		e.log.Warn("failed to close output", "error", err)
	}
}

func windowLabel(hour int) string {
	return padHour(hour) + ".00-" + padHour(hour+1) + ".00"
}
