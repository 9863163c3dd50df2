package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pitstone-retail/ecr-sync/pkg/aggregate"
)

// FormatRow renders a row as a single diagnostic line, matching the field
// order of the CSV schema.
func FormatRow(row *aggregate.Row) string {
	return strings.Join(Cells(row), ", ")
}

// Printer is a Sink that prints rows instead of writing files, used by
// replay --dry-run.
type Printer struct {
	Out io.Writer
}

// Append prints one row.
func (p *Printer) Append(row *aggregate.Row) error {
	_, err := fmt.Fprintln(p.Out, FormatRow(row))
	return err
}

// Close is a no-op.
func (p *Printer) Close() error {
	return nil
}
