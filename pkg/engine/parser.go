package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pitstone-retail/ecr-sync/pkg/catalog"
	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
)

// eventClockPattern pulls HH:MM out of a 420 header timestamp.
var eventClockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// eventClock determines the wall-clock time of the current printout
// block: the 420 stamps it into the header, the 520 prints none so the
// system clock stands in. A negative hour means the header is malformed.
func (e *Engine) eventClock(chunk string) (string, int) {
	if e.dialect == normalize.Dialect520 {
		t := e.now()
		return t.Format("15:04"), t.Hour()
	}

	m := eventClockPattern.FindStringSubmatch(chunk)
	if m == nil {
		return "", -1
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return "", -1
	}
	minute := m[2]
	return padHour(hour) + ":" + minute, hour
}

func padHour(h int) string {
	if h < 10 {
		return "0" + strconv.Itoa(h)
	}
	return strconv.Itoa(h)
}

// parseLine splits a transaction line into key and value and applies its
// effect on the hourly row. Subdispatch order matters: first match wins.
func (e *Engine) parseLine(chunk string) {
	key, value, ok := e.splitLine(chunk)
	if !ok {
		return
	}

	row := e.agg.Row()
	switch {
	case strings.Contains(key, "TOTAL"):
		row.TotalTakings += value
		if e.dialect != normalize.Dialect520 {
			// The 420's TOTAL line is the commit point.
			e.commit()
		}
	case strings.Contains(key, "CASH"):
		row.Cash += value
	case strings.Contains(key, "CHANGE"):
		row.Cash -= value
		if e.cardAmount > 0 {
			// Change after a card line means the cashier hit CARD by
			// mistake: the tender was really cash.
			row.CreditCards -= e.cardAmount
			row.Cash += e.cardAmount
			e.cardAmount = 0
		}
		if e.dialect == normalize.Dialect520 {
			// The 520 never prints TOTAL; CHANGE is its commit point and
			// closes the transaction, as the footer does on the 420.
			e.awaitChange = false
			e.commit()
			e.state = stateFooter
		}
	case strings.Contains(key, "CHEQUE"), strings.Contains(key, "CARD"):
		row.CreditCards += value
		e.cardAmount = value
	case strings.HasPrefix(key, "AMOUNT"):
		// Discount against the most recent item; value carries its sign.
		if e.currentPLU >= 0 {
			row.PLU[e.currentPLU] += value
		}
	default:
		e.onItem(key, value)
	}

	e.touch()
	e.save()
}

// commit marks the in-flight transaction as counted. The snapshot stays
// armed until the next header replaces it.
func (e *Engine) commit() {
	row := e.agg.Row()
	row.CustomerCount++
	row.LastTransaction = e.eventTime
}

// onItem validates a PLU line against the catalog and the single-item
// price cap before adding it to the per-category totals.
func (e *Engine) onItem(key string, value float64) {
	name := catalog.TitleCase(strings.TrimSpace(key))
	idx, ok := e.cat.Index(name)
	if !ok {
		e.log.Info("unknown PLU dropped", "name", name, "value", value)
		return
	}

	row := e.agg.Row()
	if value >= e.itemCap {
		if e.dialect == normalize.Dialect520 {
			// The 520's running totals will include the bogus item via
			// the device's own CASH figure; pre-subtract to cancel it.
			row.TotalTakings -= value
			row.Cash -= value
		}
		e.log.Info("item over price cap rejected", "name", name, "value", value)
		return
	}

	row.PLU[idx] += value
	e.currentPLU = idx
	if e.dialect == normalize.Dialect520 {
		// No authoritative TOTAL line on the 520: takings accrue per item.
		row.TotalTakings += value
	}
}

// splitLine splits on the currency symbol into (key, value). Lines with
// no currency symbol are discarded unless they are AMOUNT discounts.
func (e *Engine) splitLine(chunk string) (string, float64, bool) {
	idx := strings.Index(chunk, e.currency)
	if idx < 0 {
		trimmed := strings.TrimSpace(chunk)
		if !strings.HasPrefix(trimmed, "AMOUNT") {
			return "", 0, false
		}
		v, ok := firstNumber(strings.TrimPrefix(trimmed, "AMOUNT"))
		if !ok {
			return "", 0, false
		}
		return "AMOUNT", v, true
	}

	key := strings.TrimSpace(chunk[:idx])
	v, ok := firstNumber(chunk[idx+len(e.currency):])
	if !ok {
		return "", 0, false
	}
	return key, v, true
}

// firstNumber parses the first whitespace-separated token as a float.
func firstNumber(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func containsCurrency(chunk, currency string) bool {
	return strings.Contains(chunk, currency)
}

func hasKey(chunk, key string) bool {
	return strings.HasPrefix(strings.TrimSpace(chunk), key)
}
