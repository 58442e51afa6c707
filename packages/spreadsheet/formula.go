package spreadsheet

// ASTKey represents a normalized AST used as a key for formula deduplication,
// two formulas with the same structure (ignoring whitespace and $ locks)
// will have the same ASTKey. we use a string key because ASTs are not
// comparable.
type ASTKey string

// FormulaTable stores the formulas of one run centrally, so identical
// formula text is tokenized and parsed once.
type FormulaTable struct {
	// core formula storage

	textIndex map[string]uint32  // formula body -> formula ID
	astIndex  map[ASTKey]uint32  // normalized AST -> formula ID
	astCache  map[uint32]ASTNode // formula ID -> cached parsed AST
	refCounts map[uint32]int     // formula ID -> reference count

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		textIndex: make(map[string]uint32),
		astIndex:  make(map[ASTKey]uint32),
		astCache:  make(map[uint32]ASTNode),
		refCounts: make(map[uint32]int),
		nextID:    1, // start at 1, reserve 0 for no formula
	}
}

// normalizeAST converts an AST to its normalized string representation
func (ft *FormulaTable) normalizeAST(ast ASTNode) ASTKey {
	if ast == nil {
		return ""
	}
	return ASTKey(ast.ToString())
}

// InternFormula parses a formula body, or reuses the AST of an identical
// body or structure seen earlier. returns the formula ID and its AST.
func (ft *FormulaTable) InternFormula(body string) (uint32, ASTNode) {
	// same text, no need to parse again
	if id, exists := ft.textIndex[body]; exists {
		ft.refCounts[id]++
		return id, ft.astCache[id]
	}

	ast := ParseFormula(body)
	key := ft.normalizeAST(ast)

	// different text, same structure
	if id, exists := ft.astIndex[key]; exists {
		ft.textIndex[body] = id
		ft.refCounts[id]++
		return id, ft.astCache[id]
	}

	// add new formula
	id := ft.nextID
	ft.textIndex[body] = id
	ft.astIndex[key] = id
	ft.astCache[id] = ast
	ft.refCounts[id] = 1
	ft.nextID++

	return id, ast
}

// Count returns the number of distinct formulas
func (ft *FormulaTable) Count() int {
	return len(ft.astCache)
}

// TotalReferences returns the sum of all reference counts
func (ft *FormulaTable) TotalReferences() int {
	total := 0
	for _, count := range ft.refCounts {
		total += count
	}
	return total
}
