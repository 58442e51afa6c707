package spreadsheet

// SheetSource is a named, read-only grid of text cells addressed by
// zero-based row and column. reads outside the grid return "".
type SheetSource interface {
	Name() string
	GetCell(row, col int) string
	Dimensions() (rows, cols int)
}

// Worksheet is the in-memory SheetSource. rows may be ragged; the sheet is
// as wide as its widest row. a Worksheet is never modified after
// construction.
type Worksheet struct {
	name  string
	rows  [][]string
	width int
}

// NewWorksheet creates a worksheet from rows of text cells. the row slices
// are copied so later changes by the caller are not observed.
func NewWorksheet(name string, rows [][]string) *Worksheet {
	w := &Worksheet{
		name: name,
		rows: make([][]string, len(rows)),
	}
	for i, row := range rows {
		w.rows[i] = append([]string(nil), row...)
		w.width = max(w.width, len(row))
	}
	return w
}

func (w *Worksheet) Name() string {
	return w.name
}

// GetCell retrieves the text at the given row and column
func (w *Worksheet) GetCell(row, col int) string {
	if row < 0 || col < 0 || row >= len(w.rows) {
		return ""
	}
	cells := w.rows[row]
	if col >= len(cells) {
		return ""
	}
	return cells[col]
}

// Dimensions returns the row count and the width of the widest row
func (w *Worksheet) Dimensions() (rows, cols int) {
	return len(w.rows), w.width
}

// emptySheet stands in for a missing raw sheet
type emptySheet struct {
	name string
}

func (e emptySheet) Name() string { return e.name }
func (e emptySheet) GetCell(row, col int) string { return "" }
func (e emptySheet) Dimensions() (int, int) { return 0, 0 }
