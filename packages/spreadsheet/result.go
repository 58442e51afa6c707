package spreadsheet

import "go.uber.org/zap"

// Result is the output of one evaluation pass
type Result struct {
	// Sheet is the formula sheet name
	Sheet string

	// Values has the formula sheet's shape; every formula cell holds its
	// computed value and no cell holds a List
	Values [][]Value

	// Diagnostics lists local degradations in the order they occurred
	Diagnostics []Diagnostic

	graph    *DependencyGraph
	formulas *FormulaTable
}

// Rows returns the output as text cells, ready to be written out
func (r *Result) Rows() [][]string {
	rows := make([][]string, len(r.Values))
	for i, row := range r.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = v.String()
		}
	}
	return rows
}

// Get returns the computed value at row, col, or Blank outside the grid
func (r *Result) Get(row, col int) Value {
	if row < 0 || row >= len(r.Values) || col < 0 || col >= len(r.Values[row]) {
		return Blank
	}
	return r.Values[row][col]
}

// Precedents returns the cells the formula at row, col read, with ranges
// expanded
func (r *Result) Precedents(row, col int) []CellAddress {
	return r.graph.GetPrecedentCells(CellAddress{Sheet: r.Sheet, Row: row, Col: col})
}

// Dependents returns the formula cells that read the cell at row, col
func (r *Result) Dependents(row, col int) []CellAddress {
	return r.graph.GetDirectDependents(CellAddress{Sheet: r.Sheet, Row: row, Col: col})
}

// CalculationOrder returns the formula cells of the pass with every cell
// after the formulas it reads
func (r *Result) CalculationOrder() []CellAddress {
	order, _ := r.graph.GetCalculationOrder()
	formulas := order[:0]
	for _, addr := range order {
		if _, ok := r.graph.GetFormula(addr); ok {
			formulas = append(formulas, addr)
		}
	}
	return formulas
}

// DependencyGraph returns the graph recorded during the pass
func (r *Result) DependencyGraph() *DependencyGraph {
	return r.graph
}

// DistinctFormulas returns how many structurally distinct formulas the
// sheet holds
func (r *Result) DistinctFormulas() int {
	return r.formulas.Count()
}

// EvaluateAll visits every formula sheet cell in row-major order and
// assembles the output grid. a cycle aborts the pass and no partial result
// is returned.
func (ev *Evaluator) EvaluateAll() (*Result, error) {
	rows, cols := ev.storage.formulaSheet.Dimensions()
	ev.logger.Debug("evaluating sheet", zap.Int("rows", rows), zap.Int("cols", cols))

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if _, err := ev.evaluate(ev.formulaCell(row, col)); err != nil {
				return nil, err
			}
		}
	}

	return ev.assemble()
}

// assemble copies the memo cache into a grid of the formula sheet's shape.
// a formula cell with no cache entry was never executed and fails the run.
func (ev *Evaluator) assemble() (*Result, error) {
	rows, cols := ev.storage.formulaSheet.Dimensions()
	values := make([][]Value, rows)

	for row := 0; row < rows; row++ {
		values[row] = make([]Value, cols)
		for col := 0; col < cols; col++ {
			addr := ev.formulaCell(row, col)
			text := ev.storage.formulaSheet.GetCell(row, col)

			v, evaluated := ev.cache[addr]
			if !evaluated {
				if isFormula(text) {
					return nil, &UnevaluatedFormulaError{Address: addr, Formula: text}
				}
				v = Text(text)
			}
			if v.Kind() == KindList {
				ev.diagnose(addr, ErrorCodeValue, "range result has no single value, written as blank")
				v = Blank
			}
			values[row][col] = v
		}
	}

	ev.logger.Debug("evaluation finished",
		zap.Int("formula_cells", ev.storage.formulas.TotalReferences()),
		zap.Int("distinct_formulas", ev.storage.formulas.Count()),
		zap.Int("graph_nodes", ev.storage.dependencyGraph.NodeCount()),
		zap.Int("diagnostics", len(ev.diagnostics)))

	return &Result{
		Sheet:       ev.storage.formulaSheet.Name(),
		Values:      values,
		Diagnostics: ev.diagnostics,
		graph:       ev.storage.dependencyGraph,
		formulas:    ev.storage.formulas,
	}, nil
}
