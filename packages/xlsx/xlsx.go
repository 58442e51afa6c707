// Package xlsx loads formula and raw sheets from .xlsx workbooks and writes
// evaluated grids back out.
package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vogtb/sheetcalc/packages/spreadsheet"
)

// Workbook is an open .xlsx file
type Workbook struct {
	f    *excelize.File
	path string
}

// Open opens the workbook at path. callers must Close it.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &Workbook{f: f, path: path}, nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

// SheetNames lists the worksheets in workbook order
func (w *Workbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *Workbook) resolve(sheet string) (string, error) {
	names := w.f.GetSheetList()
	if sheet == "" {
		if len(names) == 0 {
			return "", spreadsheet.NewApplicationError(spreadsheet.NotFound,
				fmt.Sprintf("%s has no worksheets", w.path))
		}
		return names[0], nil
	}
	for _, name := range names {
		if name == sheet {
			return name, nil
		}
	}
	return "", spreadsheet.NewApplicationError(spreadsheet.NotFound,
		fmt.Sprintf("worksheet %q not found in %s", sheet, w.path))
}

// ValueRows returns the displayed text of every cell of sheet. "" means the
// first worksheet.
func (w *Workbook) ValueRows(sheet string) ([][]string, error) {
	name, err := w.resolve(sheet)
	if err != nil {
		return nil, err
	}
	rows, err := w.f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %s: %w", name, err)
	}
	return rows, nil
}

// FormulaRows is like ValueRows, but cells holding a formula yield the
// formula text with a leading "=" instead of their cached value
func (w *Workbook) FormulaRows(sheet string) ([][]string, error) {
	name, err := w.resolve(sheet)
	if err != nil {
		return nil, err
	}
	rows, err := w.f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %s: %w", name, err)
	}
	rows = w.padToDimension(name, rows)

	for r, row := range rows {
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			formula, err := w.f.GetCellFormula(name, cell)
			if err != nil {
				return nil, fmt.Errorf("reading formula at %s!%s: %w", name, cell, err)
			}
			if formula != "" {
				rows[r][c] = "=" + formula
			}
		}
	}
	return rows, nil
}

// padToDimension grows rows to the sheet's used range. GetRows drops
// trailing empty cells, and a formula with no cached result is one.
func (w *Workbook) padToDimension(sheet string, rows [][]string) [][]string {
	dim, err := w.f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return rows
	}
	start, end, found := strings.Cut(dim, ":")
	if !found {
		end = start
	}
	r := spreadsheet.ParseRange(start, end)
	if r.EndRow < 0 || r.EndCol < 0 {
		return rows
	}
	for len(rows) <= r.EndRow {
		rows = append(rows, nil)
	}
	for i := range rows {
		for len(rows[i]) <= r.EndCol {
			rows[i] = append(rows[i], "")
		}
	}
	return rows
}

// FormulaSheet loads sheet as a formula sheet
func (w *Workbook) FormulaSheet(sheet string) (*spreadsheet.Worksheet, error) {
	rows, err := w.FormulaRows(sheet)
	if err != nil {
		return nil, err
	}
	name, _ := w.resolve(sheet)
	return spreadsheet.NewWorksheet(name, rows), nil
}

// RawSheet loads sheet as a raw sheet; formulas contribute their cached
// values. skipHeader drops the first row.
func (w *Workbook) RawSheet(sheet string, skipHeader bool) (*spreadsheet.Worksheet, error) {
	rows, err := w.ValueRows(sheet)
	if err != nil {
		return nil, err
	}
	if skipHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	name, _ := w.resolve(sheet)
	return spreadsheet.NewWorksheet(name, rows), nil
}

// WriteResult writes the evaluated grid of result to a new workbook at path
// with a single worksheet named sheet. numbers are stored as numeric cells.
func WriteResult(path, sheet string, result *spreadsheet.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = result.Sheet
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for r, row := range result.Values {
		values := make([]any, len(row))
		for c, v := range row {
			values[c] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", r+1, err)
		}
	}

	return f.SaveAs(path)
}

func cellValue(v spreadsheet.Value) any {
	switch v.Kind() {
	case spreadsheet.KindNumber:
		return v.Num()
	default:
		return v.String()
	}
}
