package spreadsheet

// Storage holds references to the sheets and shared tables of one
// evaluation run
type Storage struct {
	formulaSheet    SheetSource
	rawSheet        SheetSource
	formulas        *FormulaTable
	dependencyGraph *DependencyGraph
}

func newStorage(formulaSheet, rawSheet SheetSource) *Storage {
	return &Storage{
		formulaSheet:    formulaSheet,
		rawSheet:        rawSheet,
		formulas:        NewFormulaTable(),
		dependencyGraph: NewDependencyGraph(),
	}
}

// sheetFor returns the sheet a canonical address points into
func (s *Storage) sheetFor(addr CellAddress) SheetSource {
	if addr.Sheet == s.rawSheet.Name() {
		return s.rawSheet
	}
	return s.formulaSheet
}
