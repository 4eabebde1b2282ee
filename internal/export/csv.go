// Package export encodes expenses as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"spesa/internal/core"
)

// ContentType is the media type of encoded exports.
const ContentType = "text/csv"

// Header is the first CSV record.
var Header = []string{"Date", "Description", "Category", "Amount"}

// WriteCSV writes a header and one record per expense in the given order.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		record := []string{
			e.Date.String(),
			e.Description,
			e.CategoryName,
			core.FormatAmount(e.Amount),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write expense %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV returns the CSV encoding of expenses.
func EncodeCSV(expenses []core.Expense) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, expenses); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download attachment name, e.g. expense_report_2024-3.csv.
func FileName(p core.Period) string {
	return fmt.Sprintf("expense_report_%d-%d.csv", p.Year, p.Month)
}

// DriveFileName is the uploaded file name, e.g. expense_report_2024-03.
func DriveFileName(p core.Period) string {
	return fmt.Sprintf("expense_report_%d-%02d", p.Year, p.Month)
}
