// Package dispatch classifies normalized chunks against a fixed, ordered
// pattern table. The first matching pattern wins, so rule order is part
// of the contract with the device.
package dispatch

import (
	"regexp"
	"strings"

	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
)

// Kind is the classification of one normalized chunk.
type Kind int

const (
	// KindHeader marks the start of a printout block.
	KindHeader Kind = iota
	// KindFooter is the CLERK line closing a transaction printout.
	KindFooter
	// KindReport is a Z/X report; observed and ignored.
	KindReport
	// KindCancel retroactively voids the in-flight transaction.
	KindCancel
	// KindReprint is a reprinted copy of an earlier transaction.
	KindReprint
	// KindRefund is a PAID OUT block.
	KindRefund
	// KindNoSale is a drawer-open without a sale.
	KindNoSale
	// KindDiagnostic is device chatter containing '='.
	KindDiagnostic
	// KindLine is the fallthrough: a candidate transaction line.
	KindLine
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindFooter:
		return "footer"
	case KindReport:
		return "report"
	case KindCancel:
		return "cancel"
	case KindReprint:
		return "reprint"
	case KindRefund:
		return "refund"
	case KindNoSale:
		return "nosale"
	case KindDiagnostic:
		return "diagnostic"
	default:
		return "line"
	}
}

// header420 anchors on the date the 420 prints at the top of every block.
var header420 = regexp.MustCompile(`^\d{1,2}/\d{2}/\d{4}`)

type rule struct {
	kind  Kind
	match func(string) bool
}

// Dispatcher holds the compiled pattern table for one dialect.
type Dispatcher struct {
	rules []rule
}

// New compiles the pattern table. Only the header rule differs between
// dialects: the 420 stamps a date, the 520 prints REGISTER MODE.
func New(dialect normalize.Dialect) *Dispatcher {
	headerMatch := func(s string) bool { return header420.MatchString(s) }
	if dialect == normalize.Dialect520 {
		headerMatch = func(s string) bool { return strings.Contains(s, "REGISTER MODE") }
	}

	return &Dispatcher{rules: []rule{
		{KindHeader, headerMatch},
		{KindFooter, func(s string) bool { return strings.HasPrefix(s, "CLERK") }},
		{KindReport, func(s string) bool { return strings.Contains(s, "REPORT") }},
		{KindCancel, func(s string) bool { return strings.Contains(s, "CANCEL") }},
		{KindReprint, func(s string) bool { return strings.Contains(s, "REPRINT") }},
		{KindRefund, func(s string) bool { return strings.HasPrefix(s, "PAID OUT") }},
		{KindNoSale, func(s string) bool {
			return strings.Contains(s, "NOSALE") || strings.Contains(s, "NS")
		}},
		{KindDiagnostic, func(s string) bool { return strings.Contains(s, "=") }},
	}}
}

// Classify returns the kind of a normalized chunk.
func (d *Dispatcher) Classify(chunk string) Kind {
	for _, r := range d.rules {
		if r.match(chunk) {
			return r.kind
		}
	}
	return KindLine
}
