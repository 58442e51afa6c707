package spreadsheet

import "iter"

// RangeAddress represents a rectangular block of cells within a single
// sheet. bounds are inclusive and normalized so Start <= End.
type RangeAddress struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// ParseRange builds a range from the two endpoint texts of "A1:B3". the
// sheet is taken from the start endpoint, else the end endpoint; if
// neither is qualified Sheet is empty and callers substitute the sheet
// that owns the formula.
func ParseRange(start, end string) RangeAddress {
	a := ParseAddress(start)
	b := ParseAddress(end)
	sheet := a.Sheet
	if sheet == "" {
		sheet = b.Sheet
	}
	return RangeAddress{
		Sheet:    sheet,
		StartRow: min(a.Row, b.Row),
		StartCol: min(a.Col, b.Col),
		EndRow:   max(a.Row, b.Row),
		EndCol:   max(a.Col, b.Col),
	}
}

// CellRange returns the single-cell range covering addr
func CellRange(addr CellAddress) RangeAddress {
	return RangeAddress{
		Sheet:    addr.Sheet,
		StartRow: addr.Row,
		StartCol: addr.Col,
		EndRow:   addr.Row,
		EndCol:   addr.Col,
	}
}

// Size returns the number of cells in the range
func (r RangeAddress) Size() int {
	return (r.EndRow - r.StartRow + 1) * (r.EndCol - r.StartCol + 1)
}

// Start returns the top-left cell
func (r RangeAddress) Start() CellAddress {
	return CellAddress{Sheet: r.Sheet, Row: r.StartRow, Col: r.StartCol}
}

// End returns the bottom-right cell
func (r RangeAddress) End() CellAddress {
	return CellAddress{Sheet: r.Sheet, Row: r.EndRow, Col: r.EndCol}
}

// Contains reports whether addr lies inside the range on the same sheet
func (r RangeAddress) Contains(addr CellAddress) bool {
	return addr.Sheet == r.Sheet &&
		addr.Row >= r.StartRow && addr.Row <= r.EndRow &&
		addr.Col >= r.StartCol && addr.Col <= r.EndCol
}

func (r RangeAddress) String() string {
	end := r.End()
	end.Sheet = ""
	return r.Start().String() + ":" + end.String()
}

// Cells returns an iterator over every address in the range in row-major
// order. malformed endpoints (-1) are included and read as blank.
func (r RangeAddress) Cells() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for row := r.StartRow; row <= r.EndRow; row++ {
			for col := r.StartCol; col <= r.EndCol; col++ {
				if !yield(CellAddress{Sheet: r.Sheet, Row: row, Col: col}) {
					return
				}
			}
		}
	}
}
