// Package aggregate owns the hourly takings row: the tabular state built
// up from committed transactions, the pre-transaction snapshot used to
// revert cancels and reprints, and the money-conservation fix applied at
// flush time.
package aggregate

import "fmt"

// epsilon bounds the float drift tolerated by the money-conservation check.
const epsilon = 1e-8

// Row is one hour's takings. Field names are serialized into checkpoints,
// so renames are schema changes.
type Row struct {
	// Day is the business day the window belongs to, yyyymmdd.
	Day string `yaml:"day"`
	// Hour is the window start hour, or -1 while the row is empty.
	Hour int `yaml:"hour"`

	TotalTakings float64   `yaml:"total_takings"`
	Cash         float64   `yaml:"cash"`
	CreditCards  float64   `yaml:"credit_cards"`
	PLU          []float64 `yaml:"plu"`

	CustomerCount    int    `yaml:"customer_count"`
	FirstTransaction string `yaml:"first_transaction"`
	LastTransaction  string `yaml:"last_transaction"`
	NoSale           int    `yaml:"no_sale"`
}

// NewRow returns an empty row with one PLU slot per catalog entry.
func NewRow(pluCount int) Row {
	return Row{Hour: -1, PLU: make([]float64, pluCount)}
}

// Empty reports whether the row has no open window.
func (r *Row) Empty() bool {
	return r.Hour < 0
}

// Window renders the half-open clock interval, e.g. "09.00-10.00".
func (r *Row) Window() string {
	return fmt.Sprintf("%02d.00-%02d.00", r.Hour, r.Hour+1)
}

// Clone returns a structural deep copy of the row.
func (r *Row) Clone() Row {
	c := *r
	c.PLU = make([]float64, len(r.PLU))
	copy(c.PLU, r.PLU)
	return c
}

// Worth reports whether the row should be written at all: quiescent hours
// with zero takings or zero customers are discarded.
func (r *Row) Worth() bool {
	return r.TotalTakings > 0 && r.CustomerCount > 0
}

// Reconcile enforces TotalTakings == Cash + CreditCards before a row is
// written. A device that omits the card line leaves CreditCards at zero,
// in which case cash is authoritative; otherwise the card total absorbs
// the difference.
func (r *Row) Reconcile() {
	diff := r.TotalTakings - (r.Cash + r.CreditCards)
	if diff < -epsilon || diff > epsilon {
		if r.CreditCards == 0 {
			r.TotalTakings = r.Cash
		} else {
			r.CreditCards = r.TotalTakings - r.Cash
		}
	}
}
