package ledger

import (
	"fmt"
	"io"
	"strings"

	"famiglia/internal/core"
)

const csvHeader = "Date,Category,Description,Amount"

// WriteCSV writes expenses as CSV in the export format consumers already
// parse: M/D/YYYY dates, two-decimal amounts, fields joined verbatim with
// no quoting. Callers who need quoting must sanitize descriptions first.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')
	for _, e := range expenses {
		b.WriteString(e.Date.Format("1/2/2006"))
		b.WriteByte(',')
		b.WriteString(string(e.Category))
		b.WriteByte(',')
		b.WriteString(e.Description)
		b.WriteByte(',')
		b.WriteString(e.Amount.Decimal())
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ExportCSV renders the current user's visible expenses as a CSV string.
func ExportCSV(expenses []core.Expense) string {
	var b strings.Builder
	// WriteCSV on a strings.Builder cannot fail.
	_ = WriteCSV(&b, expenses)
	return b.String()
}
