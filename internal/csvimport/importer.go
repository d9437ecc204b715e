// Package csvimport ingests expenses from a CSV upload row by row. A bad
// row is reported and skipped; it never aborts the rest of the file.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"penny/internal/core"
)

const (
	msgMalformed      = "malformed row"
	msgInvalidDate    = "invalid date"
	msgInvalidAmount  = "invalid amount"
	msgVendorRequired = "vendor name required"
	msgNotSaved       = "could not be saved"

	// EmptyFileMessage is the single error reported for an empty upload.
	EmptyFileMessage = "Uploaded file is empty"
)

var (
	ErrEmptyFile        = errors.New("csv file is empty")
	ErrMissingColumns   = errors.New("csv header is missing required columns")
	ErrUnreadableHeader = errors.New("csv header could not be read")
)

// IsFileRejected reports whether err rejected the whole file before any row
// was processed.
func IsFileRejected(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrMissingColumns) ||
		errors.Is(err, ErrUnreadableHeader)
}

// Accepted header names per field. Header cells are trimmed, lowercased and
// have spaces replaced by underscores before lookup.
var (
	dateAliases        = []string{"date", "expense_date", "txn_date"}
	amountAliases      = []string{"amount", "amt", "price"}
	vendorAliases      = []string{"vendor_name", "vendor", "merchant"}
	descriptionAliases = []string{"description", "desc", "notes"}
)

// Date layouts tried in order. ISO first; day-first before month-first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2/1/2006",
}

var amountNoise = strings.NewReplacer(",", "", "₹", "", "$", "", "€", "")

// Result summarizes one import. Errors keeps file order.
type Result struct {
	Added  int      `json:"added"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// Ingester stores one expense, returning *core.ValidationError for input
// it rejects.
type Ingester interface {
	Ingest(ctx context.Context, n core.NewExpense) (core.Expense, error)
}

type Importer struct {
	ingester Ingester
}

func NewImporter(ing Ingester) *Importer {
	return &Importer{ingester: ing}
}

type columns struct {
	date, amount, vendor, description int
	width                             int
}

// Import reads r to the end, ingesting each data row in file order. Row 1
// is the first line after the header.
//
// A file-level problem (empty file, unusable header) returns an error along
// with a Result that carries it as a single failure. Cancellation is checked
// between rows; the partial Result is returned with ctx.Err().
//
// A quoted field may span lines, so a quote left open reads every following
// line into that field. The rest of the file then counts as one malformed
// row and nothing after it is ingested.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	res := Result{Errors: []string{}}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fileFailure(res, EmptyFileMessage), ErrEmptyFile
	}
	if err != nil {
		msg := fmt.Sprintf("could not read header: %v", err)
		return fileFailure(res, msg), fmt.Errorf("%w: %v", ErrUnreadableHeader, err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return fileFailure(res, err.Error()), err
	}

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return res, fmt.Errorf("read row %d: %w", row, err)
			}
			res.fail(row, msgMalformed)
			continue
		}

		n, msg := cols.parse(record)
		if msg != "" {
			res.fail(row, msg)
			continue
		}

		if _, err := im.ingester.Ingest(ctx, n); err != nil {
			var verr *core.ValidationError
			switch {
			case errors.As(err, &verr):
				res.fail(row, verr.Err.Error())
			case ctx.Err() != nil:
				return res, ctx.Err()
			default:
				slog.ErrorContext(ctx, "CSV row could not be saved", "row", row, "error", err)
				res.fail(row, msgNotSaved)
			}
			continue
		}
		res.Added++
	}

	return res, nil
}

func (res *Result) fail(row int, msg string) {
	res.Failed++
	res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", row, msg))
}

func fileFailure(res Result, msg string) Result {
	res.Failed = 1
	res.Errors = append(res.Errors, msg)
	return res
}

func resolveColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	lookup := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		date:        lookup(dateAliases),
		amount:      lookup(amountAliases),
		vendor:      lookup(vendorAliases),
		description: lookup(descriptionAliases),
		width:       len(header),
	}

	var missing []string
	if cols.date < 0 {
		missing = append(missing, "date")
	}
	if cols.amount < 0 {
		missing = append(missing, "amount")
	}
	if cols.vendor < 0 {
		missing = append(missing, "vendor_name")
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

// parse maps one record onto a NewExpense. It returns a row error message
// for the first check that fails: field count, date, amount, vendor.
func (c columns) parse(record []string) (core.NewExpense, string) {
	if len(record) != c.width {
		return core.NewExpense{}, msgMalformed
	}

	date, ok := parseDate(record[c.date])
	if !ok {
		return core.NewExpense{}, msgInvalidDate
	}

	amount, err := core.ParseAmount(amountNoise.Replace(record[c.amount]))
	if err != nil {
		return core.NewExpense{}, msgInvalidAmount
	}

	vendor := strings.TrimSpace(record[c.vendor])
	if vendor == "" {
		return core.NewExpense{}, msgVendorRequired
	}

	var description string
	if c.description >= 0 {
		description = strings.TrimSpace(record[c.description])
	}

	return core.NewExpense{
		Date:        date,
		Amount:      amount,
		VendorName:  vendor,
		Description: description,
	}, ""
}

func parseDate(raw string) (core.Date, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return core.Date{Time: t}, true
		}
	}
	return core.Date{}, false
}
