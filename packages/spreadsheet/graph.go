package spreadsheet

import (
	"cmp"
	"slices"
)

// DependencyNode represents a formula cell in the dependency graph, or a
// cell a formula refers to
type DependencyNode struct {
	// address of *THIS* node
	Address CellAddress

	// cell-to-cell dependencies
	CellPrecedents map[CellAddress]*DependencyNode // cells this cell depends on
	CellDependents map[CellAddress]*DependencyNode // cells that depend on this cell

	// range dependencies (only for formula cells that depend on ranges)
	RangePrecedents map[RangeAddress]struct{} // ranges this cell depends on

	// formula text, "" for cells that are only referenced
	Formula string
}

// DependencyGraph records which cells each evaluated formula reads. it is
// built as a side effect of evaluation and is read-only afterwards. ranges
// are stored as ranges and only expanded when queried.
type DependencyGraph struct {
	nodes          map[CellAddress]*DependencyNode           // all nodes in the graph
	rangeObservers map[RangeAddress]map[CellAddress]struct{} // range -> cells that depend on it
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddress]*DependencyNode),
		rangeObservers: make(map[RangeAddress]map[CellAddress]struct{}),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}

	node := &DependencyNode{
		Address:         addr,
		CellPrecedents:  make(map[CellAddress]*DependencyNode),
		CellDependents:  make(map[CellAddress]*DependencyNode),
		RangePrecedents: make(map[RangeAddress]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// AddCellDependency records that from reads to
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	fromNode.CellPrecedents[to] = toNode
	toNode.CellDependents[from] = fromNode
}

// AddRangeDependency records that from reads every cell of rangeAddr
func (dg *DependencyGraph) AddRangeDependency(from CellAddress, rangeAddr RangeAddress) {
	node := dg.GetOrCreateNode(from)

	// add range to node's precedents
	node.RangePrecedents[rangeAddr] = struct{}{}

	// add node to range observers
	if dg.rangeObservers[rangeAddr] == nil {
		dg.rangeObservers[rangeAddr] = make(map[CellAddress]struct{})
	}
	dg.rangeObservers[rangeAddr][from] = struct{}{}
}

// SetFormula stores the formula text of a node
func (dg *DependencyGraph) SetFormula(addr CellAddress, formula string) {
	dg.GetOrCreateNode(addr).Formula = formula
}

// GetFormula returns the formula text of a node
func (dg *DependencyGraph) GetFormula(addr CellAddress) (string, bool) {
	node, exists := dg.nodes[addr]
	if !exists || node.Formula == "" {
		return "", false
	}
	return node.Formula, true
}

// GetDirectDependents returns cells directly depending on this cell,
// through a cell reference or a range covering it, in row-major order
func (dg *DependencyGraph) GetDirectDependents(addr CellAddress) []CellAddress {
	seen := make(map[CellAddress]struct{})
	if node, exists := dg.nodes[addr]; exists {
		for dependent := range node.CellDependents {
			seen[dependent] = struct{}{}
		}
	}
	for rangeAddr, observers := range dg.rangeObservers {
		if !rangeAddr.Contains(addr) {
			continue
		}
		for observer := range observers {
			seen[observer] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	return sortedSet(seen)
}

// GetDirectPrecedents returns the cells this cell reads through single
// cell references, in row-major order. see GetRangePrecedents for ranges.
func (dg *DependencyGraph) GetDirectPrecedents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	return sortedKeys(node.CellPrecedents)
}

// GetPrecedentCells returns every cell this cell reads, with its ranges
// expanded, in row-major order. malformed range cells are skipped.
func (dg *DependencyGraph) GetPrecedentCells(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	seen := make(map[CellAddress]struct{}, len(node.CellPrecedents))
	for precedent := range node.CellPrecedents {
		seen[precedent] = struct{}{}
	}
	for rangeAddr := range node.RangePrecedents {
		for cell := range rangeAddr.Cells() {
			if cell.Valid() {
				seen[cell] = struct{}{}
			}
		}
	}
	return sortedSet(seen)
}

// GetRangePrecedents returns ranges this cell depends on
func (dg *DependencyGraph) GetRangePrecedents(addr CellAddress) []RangeAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	result := make([]RangeAddress, 0, len(node.RangePrecedents))
	for rangeAddr := range node.RangePrecedents {
		result = append(result, rangeAddr)
	}
	slices.SortFunc(result, func(a, b RangeAddress) int {
		return compareAddresses(a.Start(), b.Start())
	})
	return result
}

// FormulaCells returns the addresses of every node holding a formula, in
// row-major order
func (dg *DependencyGraph) FormulaCells() []CellAddress {
	var result []CellAddress
	for addr, node := range dg.nodes {
		if node.Formula != "" {
			result = append(result, addr)
		}
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

// GetCalculationOrder returns every node with its precedents, including
// nodes inside its ranges, before it and reports whether a cycle was found
func (dg *DependencyGraph) GetCalculationOrder() ([]CellAddress, bool) {
	// three states: unvisited (not in map), visiting (false), visited (true)
	state := make(map[CellAddress]bool)
	var order []CellAddress
	hasCycle := false

	var visit func(addr CellAddress)
	visit = func(addr CellAddress) {
		if completed, exists := state[addr]; exists {
			if !completed {
				// currently visiting - cycle detected
				hasCycle = true
			}
			return
		}

		// mark as visiting
		state[addr] = false

		if node, exists := dg.nodes[addr]; exists {
			// visit all precedents first
			for _, precedentAddr := range sortedKeys(node.CellPrecedents) {
				visit(precedentAddr)
			}
			for _, rangeAddr := range dg.GetRangePrecedents(addr) {
				for _, precedentAddr := range dg.nodesIn(rangeAddr) {
					visit(precedentAddr)
				}
			}
		}

		// mark as visited
		state[addr] = true
		order = append(order, addr)
	}

	// visit all nodes in a deterministic order
	addrs := make([]CellAddress, 0, len(dg.nodes))
	for addr := range dg.nodes {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, compareAddresses)
	for _, addr := range addrs {
		visit(addr)
	}

	return order, hasCycle
}

// NodeCount returns the number of nodes
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// nodesIn returns the nodes inside r in row-major order, walking whichever
// is smaller: the range or the node set
func (dg *DependencyGraph) nodesIn(r RangeAddress) []CellAddress {
	var result []CellAddress
	if r.Size() <= len(dg.nodes) {
		for cell := range r.Cells() {
			if _, exists := dg.nodes[cell]; exists {
				result = append(result, cell)
			}
		}
		return result
	}
	for addr := range dg.nodes {
		if r.Contains(addr) {
			result = append(result, addr)
		}
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

func sortedSet(m map[CellAddress]struct{}) []CellAddress {
	result := make([]CellAddress, 0, len(m))
	for addr := range m {
		result = append(result, addr)
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

func sortedKeys(m map[CellAddress]*DependencyNode) []CellAddress {
	result := make([]CellAddress, 0, len(m))
	for addr := range m {
		result = append(result, addr)
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

// compareAddresses orders by sheet, then row, then column
func compareAddresses(a, b CellAddress) int {
	if c := cmp.Compare(a.Sheet, b.Sheet); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	return cmp.Compare(a.Col, b.Col)
}
