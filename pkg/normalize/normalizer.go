// Package normalize turns raw receipt-printer chunks into canonical text
// the dispatcher can classify. The rewrites are byte-exact: they mirror
// what the two SAM4S generations actually put on the wire.
package normalize

import (
	"regexp"
	"strings"
)

// Dialect identifies which SAM4S generation produced the stream.
type Dialect string

const (
	// Dialect420 is the timestamped, line-delimited output of the 420 class.
	Dialect420 Dialect = "d420"
	// Dialect520 is the polling, escape-delimited output of the 520 class.
	Dialect520 Dialect = "d520"
)

// quantityMarker matches the whitespace-surrounded single-digit quantity
// the 520 interleaves into item lines.
var quantityMarker = regexp.MustCompile(`\s[0-9]\s`)

// price matches a bare 1-2 digit price literal the 520 prints without a
// currency symbol.
var price = regexp.MustCompile(`\d{1,2}\.\d\d`)

// Normalizer rewrites raw chunks for one dialect. The zero value is not
// usable; construct with New.
type Normalizer struct {
	dialect  Dialect
	currency string

	// pending holds the synthetic CHANGE sub-chunk split off a 520 CASH
	// line, drained on the next read cycle to keep CASH-then-CHANGE order.
	pending string
}

// New creates a Normalizer for the given dialect and currency symbol.
func New(dialect Dialect, currency string) *Normalizer {
	return &Normalizer{dialect: dialect, currency: currency}
}

// TakePending returns the queued synthetic sub-chunk, if any, and clears
// the slot. The caller must process it before reading a new chunk.
func (n *Normalizer) TakePending() (string, bool) {
	if n.pending == "" {
		return "", false
	}
	chunk := n.pending
	n.pending = ""
	return chunk, true
}

// Normalize produces zero or more canonical chunks, in order, from one raw
// chunk. It never fails; malformed text falls through and is rejected by
// the downstream classifier.
func (n *Normalizer) Normalize(chunk string) []string {
	s := n.scrub(chunk)

	if n.dialect != Dialect520 {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	s = strings.ReplaceAll(s, "@", "")
	s = quantityMarker.ReplaceAllString(s, " ")
	s = n.tagPrices(s)
	return n.splitTender(s)
}

// scrub applies the dialect-independent byte rewrites: NUL and the UTF-8
// lead byte 0xC2 are stripped, and 0xA3 (the pound sign the 0xC2 strip
// leaves behind), 0x9C and '?' are all things the printer emits in place
// of the currency symbol.
func (n *Normalizer) scrub(chunk string) string {
	var b strings.Builder
	b.Grow(len(chunk))
	for i := 0; i < len(chunk); i++ {
		switch c := chunk[i]; c {
		case 0x00, 0xC2:
		case 0xA3, 0x9C, '?':
			b.WriteString(n.currency)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// tagPrices prepends the currency symbol to bare price literals so that
// 520 lines split the same way 420 lines do.
func (n *Normalizer) tagPrices(s string) string {
	matches := price.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(s[last:start])
		if !n.tagged(s[:start]) {
			b.WriteString(n.currency)
		}
		b.WriteString(s[start:end])
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// tagged reports whether a price literal starting after prefix already has
// a currency symbol, or sits inside a longer number.
func (n *Normalizer) tagged(prefix string) bool {
	if strings.HasSuffix(prefix, n.currency) {
		return true
	}
	if prefix == "" {
		return false
	}
	c := prefix[len(prefix)-1]
	return (c >= '0' && c <= '9') || c == '.'
}

// splitTender splits a 520 chunk containing CASH into ordered sub-chunks.
// The device prints the item, the cash tendered and the change given on
// one physical line; the CHANGE part is queued for the next read cycle.
func (n *Normalizer) splitTender(s string) []string {
	cash := strings.Index(s, "CASH")
	if cash < 0 {
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return nil
	}

	var out []string
	if pre := strings.TrimSpace(s[:cash]); pre != "" {
		out = append(out, pre)
	}

	rest := s[cash:]
	if change := strings.Index(rest, "CHANGE"); change >= 0 {
		out = append(out, strings.TrimSpace(rest[:change]))
		n.pending = strings.TrimSpace(rest[change:])
	} else {
		out = append(out, strings.TrimSpace(rest))
	}
	return out
}
