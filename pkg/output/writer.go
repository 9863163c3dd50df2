// Package output appends finalized hourly rows to per-day, per-site
// takings files with a stable column schema derived from the PLU catalog.
package output

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pitstone-retail/ecr-sync/pkg/aggregate"
	"github.com/pitstone-retail/ecr-sync/pkg/catalog"
	"github.com/pitstone-retail/ecr-sync/pkg/db"
	"github.com/pitstone-retail/ecr-sync/pkg/pathutil"
)

// Sink receives finalized rows. The CSV writer is the production sink;
// replay's dry-run mode substitutes a printer.
type Sink interface {
	Append(row *aggregate.Row) error
	Close() error
}

// Columns returns the header row for a catalog: the fixed fields with the
// PLU names spliced in catalog order.
func Columns(cat *catalog.Catalog) []string {
	cols := []string{"HourWindow", "TotalTakings", "Cash", "CreditCards"}
	cols = append(cols, cat.Names()...)
	return append(cols, "CustomerCount", "FirstTransaction", "LastTransaction", "NoSale")
}

// Cells renders a row into CSV fields matching Columns: money with two
// decimal places, counts as bare integers.
func Cells(row *aggregate.Row) []string {
	cells := []string{
		row.Window(),
		money(row.TotalTakings),
		money(row.Cash),
		money(row.CreditCards),
	}
	for _, v := range row.PLU {
		cells = append(cells, money(v))
	}
	return append(cells,
		strconv.Itoa(row.CustomerCount),
		row.FirstTransaction,
		row.LastTransaction,
		strconv.Itoa(row.NoSale),
	)
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Writer appends rows to <outputDir>/<yyyymmdd>_<siteId>.csv, writing the
// header row when it creates a file. It owns the file handle; Close is
// called on idle entry so the file is never held open overnight.
type Writer struct {
	paths   *pathutil.PathResolver
	siteID  string
	columns []string
	history *db.EmitHistory
	log     *slog.Logger

	file *os.File
	path string
}

// NewWriter creates a takings file writer for one site. history may be
// nil, in which case the duplicate-window backstop is skipped.
func NewWriter(paths *pathutil.PathResolver, siteID string, cat *catalog.Catalog, history *db.EmitHistory, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		paths:   paths,
		siteID:  siteID,
		columns: Columns(cat),
		history: history,
		log:     logger,
	}
}

// Append writes one finalized row. Rows are never rewritten: if the emit
// history already holds this site/day/window, the row is dropped.
func (w *Writer) Append(row *aggregate.Row) error {
	path, err := w.paths.GetOutputFilePath(row.Day, w.siteID)
	if err != nil {
		return err
	}

	if w.history != nil {
		emitted, err := w.history.HasEmitted(w.siteID, row.Day, row.Window())
		if err != nil {
			w.log.Warn("emit history unavailable, appending anyway", "error", err)
		} else if emitted {
			w.log.Warn("window already emitted, dropping row",
				"site", w.siteID, "day", row.Day, "window", row.Window())
			return nil
		}
	}

	if err := w.open(path); err != nil {
		return err
	}

	cw := csv.NewWriter(w.file)
	if err := cw.Write(Cells(row)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush row: %w", err)
	}

	if w.history != nil {
		if err := w.history.RecordEmit(db.EmitRecord{
			SiteID:       w.siteID,
			Day:          row.Day,
			HourWindow:   row.Window(),
			TotalTakings: row.TotalTakings,
			Customers:    row.CustomerCount,
			OutputFile:   path,
		}); err != nil {
			w.log.Warn("failed to record emit", "error", err)
		}
	}

	w.log.Info("row written",
		"file", path,
		"window", row.Window(),
		"takings", money(row.TotalTakings),
		"customers", row.CustomerCount,
	)
	return nil
}

// open positions the writer on the file for path, rotating when the day
// or site changed, and writes the header row into a fresh file.
func (w *Writer) open(path string) error {
	if w.file != nil && w.path == path {
		return nil
	}
	if err := w.Close(); err != nil {
		return err
	}

	if err := w.paths.EnsureParentDir(path); err != nil {
		return err
	}

	exists := w.paths.FileExists(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open takings file %s: %w", path, err)
	}

	if !exists {
		cw := csv.NewWriter(f)
		if err := cw.Write(w.columns); err != nil {
			f.Close()
			return fmt.Errorf("failed to write header: %w", err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return fmt.Errorf("failed to flush header: %w", err)
		}
	}

	w.file = f
	w.path = path
	return nil
}

// Close releases the file handle, if open.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.path = ""
	if err != nil {
		return fmt.Errorf("failed to close takings file: %w", err)
	}
	return nil
}
