package spreadsheet

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., an input file or a job)
	// was not found.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// CircularReferenceError aborts an evaluation pass. Address is the cell
// that was reached again while its own evaluation was in progress.
type CircularReferenceError struct {
	Address CellAddress
}

func (e *CircularReferenceError) Error() string {
	return "circular reference detected at " + e.Address.RC()
}

// UnevaluatedFormulaError reports a formula cell that reached the output
// without being evaluated
type UnevaluatedFormulaError struct {
	Address CellAddress
	Formula string
}

func (e *UnevaluatedFormulaError) Error() string {
	return fmt.Sprintf("formula left unevaluated at %s: %s", e.Address.RC(), e.Formula)
}

// DefaultRawSheetName is the sheet name that designates the raw sheet when
// EngineOptions.RawSheetName is empty
const DefaultRawSheetName = "RawSheet"

// EngineOptions parameterizes an Engine
type EngineOptions struct {
	// RawSheetName is the sheet name formulas use to read the raw sheet.
	// any other sheet name refers to the formula sheet.
	RawSheetName string

	// Policy restricts which formula sheet cells a formula may read. nil
	// means AllowAll.
	Policy ReferencePolicy

	// Logger receives debug events for diagnostics. nil means no logging.
	Logger *zap.Logger
}

// Engine evaluates formula sheets. it holds no per-run state and may be
// used for many runs, including concurrently.
type Engine struct {
	opts EngineOptions
}

// NewEngine creates an engine, filling in defaults for unset options
func NewEngine(opts EngineOptions) *Engine {
	if opts.RawSheetName == "" {
		opts.RawSheetName = DefaultRawSheetName
	}
	if opts.Policy == nil {
		opts.Policy = AllowAll
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{opts: opts}
}

// Evaluate runs one full pass over formulaSheet. rawSheet may be nil. the
// only fatal evaluation failure is a *CircularReferenceError.
func (e *Engine) Evaluate(formulaSheet, rawSheet SheetSource) (*Result, error) {
	ev, err := e.NewEvaluator(formulaSheet, rawSheet)
	if err != nil {
		return nil, err
	}
	return ev.EvaluateAll()
}

// NewEvaluator creates the state for one run
func (e *Engine) NewEvaluator(formulaSheet, rawSheet SheetSource) (*Evaluator, error) {
	if formulaSheet == nil {
		return nil, NewApplicationError(InvalidArgument, "formula sheet is required")
	}
	if rawSheet == nil {
		rawSheet = emptySheet{name: e.opts.RawSheetName}
	}
	if formulaSheet.Name() == e.opts.RawSheetName {
		return nil, NewApplicationError(InvalidArgument,
			fmt.Sprintf("formula sheet cannot be named %q, which designates the raw sheet", e.opts.RawSheetName))
	}
	if rawSheet.Name() != e.opts.RawSheetName {
		// the raw sheet is always addressed through the configured name
		rawSheet = renamedSheet{SheetSource: rawSheet, name: e.opts.RawSheetName}
	}

	return &Evaluator{
		storage:          newStorage(formulaSheet, rawSheet),
		calculationStack: NewCalculationStack(),
		functions:        NewDefaultBuiltInFunctions(),
		cache:            make(map[CellAddress]Value),
		policy:           e.opts.Policy,
		logger:           e.opts.Logger.With(zap.String("sheet", formulaSheet.Name())),
	}, nil
}

type renamedSheet struct {
	SheetSource
	name string
}

func (r renamedSheet) Name() string {
	return r.name
}

// Evaluator holds the memo cache and in-progress set of a single run.
// create a fresh one per run; it is not safe for concurrent use.
type Evaluator struct {
	storage          *Storage
	calculationStack *CalculationStack
	functions        *BuiltInFunctions
	cache            map[CellAddress]Value
	policy           ReferencePolicy
	logger           *zap.Logger
	diagnostics      []Diagnostic
}

// EvaluateCell evaluates one cell and, first, every formula it depends on.
// sheet may be "" for the formula sheet.
func (ev *Evaluator) EvaluateCell(sheet string, row, col int) (Value, error) {
	addr := ev.canonical(CellAddress{Sheet: sheet, Row: row, Col: col}, ev.formulaCell(0, 0))
	if addr.Sheet == ev.storage.rawSheet.Name() {
		return Text(ev.storage.rawSheet.GetCell(row, col)), nil
	}
	return ev.evaluate(addr)
}

// Diagnostics returns the diagnostics recorded so far
func (ev *Evaluator) Diagnostics() []Diagnostic {
	return ev.diagnostics
}

func (ev *Evaluator) formulaCell(row, col int) CellAddress {
	return CellAddress{Sheet: ev.storage.formulaSheet.Name(), Row: row, Col: col}
}

// canonical resolves the sheet of ref as seen from the formula in current:
// no qualifier means current's sheet, the raw sheet name means the raw
// sheet, and any other name means the formula sheet
func (ev *Evaluator) canonical(ref CellAddress, current CellAddress) CellAddress {
	switch ref.Sheet {
	case "":
		ref.Sheet = current.Sheet
	case ev.storage.rawSheet.Name():
		// raw sheet
	default:
		ref.Sheet = ev.storage.formulaSheet.Name()
	}
	return ref
}

func isFormula(text string) bool {
	return strings.HasPrefix(text, "=")
}

// evaluate runs the work stack rooted at addr, a formula sheet cell. each
// frame walks its formula's dependencies in evaluation order, pushing
// formula cells that are not yet cached; a dependency that is already on
// the stack is a cycle. once all dependencies are cached the formula is
// evaluated and the frame popped.
func (ev *Evaluator) evaluate(addr CellAddress) (Value, error) {
	if v, ok := ev.cache[addr]; ok {
		return v, nil
	}
	if ev.calculationStack.isProcessing(addr) {
		return Blank, &CircularReferenceError{Address: addr}
	}
	text := ev.storage.formulaSheet.GetCell(addr.Row, addr.Col)
	if !isFormula(text) {
		return ev.literal(addr, text), nil
	}

	ev.pushFormula(addr, text)
	for {
		frame, ok := ev.calculationStack.top()
		if !ok {
			break
		}

		if frame.next < len(frame.deps) {
			dep := frame.deps[frame.next]
			frame.next++

			if _, done := ev.cache[dep]; done {
				continue
			}
			if ev.calculationStack.isProcessing(dep) {
				// the pass is abandoned; no frame will finish
				ev.calculationStack.reset()
				ev.logger.Debug("circular reference", zap.String("cell", dep.String()))
				return Blank, &CircularReferenceError{Address: dep}
			}
			depText := ev.storage.formulaSheet.GetCell(dep.Row, dep.Col)
			if !isFormula(depText) {
				ev.literal(dep, depText)
				continue
			}
			ev.pushFormula(dep, depText)
			continue
		}

		value := frame.ast.Eval(&EvalContext{evaluator: ev, cell: frame.addr})
		ev.calculationStack.pop()
		ev.cache[frame.addr] = value
	}

	return ev.cache[addr], nil
}

// literal caches and returns a non-formula formula sheet cell
func (ev *Evaluator) literal(addr CellAddress, text string) Value {
	v := Text(text)
	if addr.Valid() {
		ev.cache[addr] = v
	}
	return v
}

// pushFormula marks addr in progress and pushes a frame for it
func (ev *Evaluator) pushFormula(addr CellAddress, text string) {
	_, ast := ev.storage.formulas.InternFormula(text[1:])
	ev.storage.dependencyGraph.SetFormula(addr, text)

	frame := &calcFrame{addr: addr, ast: ast}
	ev.extractDependencies(ast, frame)
	ev.calculationStack.push(frame)
}

// extractDependencies records the precedents of frame's formula and
// collects the formula sheet formula cells among them, in the order
// evaluation will read them
func (ev *Evaluator) extractDependencies(node ASTNode, frame *calcFrame) {
	switch n := node.(type) {
	case *CellRefNode:
		target := ev.canonical(n.Address, frame.addr)
		if !target.Valid() {
			return
		}
		ev.storage.dependencyGraph.AddCellDependency(frame.addr, target)
		if ev.isFormulaDependency(target, CellRange(target), frame.addr) {
			frame.deps = append(frame.deps, target)
		}

	case *RangeNode:
		r := n.Range
		r.Sheet = ev.canonical(r.Start(), frame.addr).Sheet
		ev.storage.dependencyGraph.AddRangeDependency(frame.addr, r)
		if r.Sheet == ev.storage.rawSheet.Name() || !ev.policy(r, frame.addr) {
			return
		}
		for cell := range r.Cells() {
			if cell.Valid() && isFormula(ev.storage.formulaSheet.GetCell(cell.Row, cell.Col)) {
				frame.deps = append(frame.deps, cell)
			}
		}

	case *BinaryOpNode:
		ev.extractDependencies(n.Left, frame)
		ev.extractDependencies(n.Right, frame)

	case *ComparisonNode:
		ev.extractDependencies(n.Left, frame)
		ev.extractDependencies(n.Right, frame)

	case *UnaryOpNode:
		ev.extractDependencies(n.Operand, frame)

	case *FunctionCallNode:
		for _, arg := range n.Args {
			ev.extractDependencies(arg, frame)
		}

	case *StringNode, *NumberNode:
		// literal nodes don't have dependencies
	}
}

// isFormulaDependency reports whether target is a formula cell the
// formula at current will actually read
func (ev *Evaluator) isFormulaDependency(target CellAddress, r RangeAddress, current CellAddress) bool {
	if target.Sheet == ev.storage.rawSheet.Name() || !ev.policy(r, current) {
		return false
	}
	return isFormula(ev.storage.formulaSheet.GetCell(target.Row, target.Col))
}

// read returns the value of a canonical, valid address during formula
// evaluation. formula sheet formulas have been evaluated by then.
func (ev *Evaluator) read(addr CellAddress) Value {
	sheet := ev.storage.sheetFor(addr)
	if addr.Sheet == ev.storage.rawSheet.Name() {
		// raw cells are never interpreted
		return Text(sheet.GetCell(addr.Row, addr.Col))
	}
	if v, ok := ev.cache[addr]; ok {
		return v
	}
	return ev.literal(addr, sheet.GetCell(addr.Row, addr.Col))
}

func (ev *Evaluator) diagnose(addr CellAddress, code ErrorCode, message string) {
	ev.diagnostics = append(ev.diagnostics, Diagnostic{Address: addr, Code: code, Message: message})
	ev.logger.Debug("formula diagnostic",
		zap.String("cell", addr.String()),
		zap.String("code", code.String()),
		zap.String("message", message))
}

// EvalContext is passed to AST nodes while a formula cell is evaluated
type EvalContext struct {
	evaluator *Evaluator
	cell      CellAddress
}

// Cell returns the address of the formula being evaluated
func (ctx *EvalContext) Cell() CellAddress {
	return ctx.cell
}

func (ctx *EvalContext) functions() *BuiltInFunctions {
	return ctx.evaluator.functions
}

func (ctx *EvalContext) diagnose(code ErrorCode, format string, args ...any) {
	ctx.evaluator.diagnose(ctx.cell, code, fmt.Sprintf(format, args...))
}

// cellValue resolves a single reference
func (ctx *EvalContext) cellValue(ref CellAddress) Value {
	ev := ctx.evaluator
	addr := ev.canonical(ref, ctx.cell)
	if !addr.Valid() {
		ctx.diagnose(ErrorCodeRef, "malformed reference reads as blank")
		return Blank
	}
	if addr.Sheet != ev.storage.rawSheet.Name() && !ev.policy(CellRange(addr), ctx.cell) {
		ctx.diagnose(ErrorCodeRef, "reference to %s is not allowed", addr)
		return Blank
	}
	return ev.read(addr)
}

// rangeValue expands a range into a List in row-major order
func (ctx *EvalContext) rangeValue(r RangeAddress) Value {
	ev := ctx.evaluator
	r.Sheet = ev.canonical(r.Start(), ctx.cell).Sheet
	if r.Sheet != ev.storage.rawSheet.Name() && !ev.policy(r, ctx.cell) {
		ctx.diagnose(ErrorCodeRef, "reference to %s is not allowed", r)
		return List(nil)
	}

	items := make([]Value, 0, max(r.Size(), 0))
	for cell := range r.Cells() {
		if !cell.Valid() {
			items = append(items, Blank)
			continue
		}
		items = append(items, ev.read(cell))
	}
	return List(items)
}

// scalarText returns the string form of a value used where a scalar is
// required. lists have none and become "".
func (ctx *EvalContext) scalarText(v Value) string {
	if v.Kind() == KindList {
		ctx.diagnose(ErrorCodeValue, "range used where a single value is required")
		return ""
	}
	return v.String()
}

// calcFrame is one formula cell on the work stack
type calcFrame struct {
	addr CellAddress
	ast  ASTNode
	deps []CellAddress
	next int
}

// CalculationStack is the explicit work stack that replaces recursion over
// cell dependencies. cells on it are in progress.
type CalculationStack struct {
	items      []*calcFrame             // stack of cells to process
	processing map[CellAddress]struct{} // currently being processed (cycle detection)
}

// NewCalculationStack creates a new calculation stack
func NewCalculationStack() *CalculationStack {
	return &CalculationStack{
		items:      make([]*calcFrame, 0),
		processing: make(map[CellAddress]struct{}),
	}
}

// push adds a cell to the stack
func (cs *CalculationStack) push(frame *calcFrame) {
	cs.items = append(cs.items, frame)
	cs.processing[frame.addr] = struct{}{}
}

// top returns the top frame without removing it
func (cs *CalculationStack) top() (*calcFrame, bool) {
	if len(cs.items) == 0 {
		return nil, false
	}
	return cs.items[len(cs.items)-1], true
}

// pop removes and returns the top frame
func (cs *CalculationStack) pop() (*calcFrame, bool) {
	if len(cs.items) == 0 {
		return nil, false
	}
	frame := cs.items[len(cs.items)-1]
	cs.items[len(cs.items)-1] = nil
	cs.items = cs.items[:len(cs.items)-1]
	delete(cs.processing, frame.addr)
	return frame, true
}

// isProcessing checks if a cell is currently being processed
func (cs *CalculationStack) isProcessing(addr CellAddress) bool {
	_, exists := cs.processing[addr]
	return exists
}

// reset clears the stack
func (cs *CalculationStack) reset() {
	clear(cs.items)
	cs.items = cs.items[:0]
	cs.processing = make(map[CellAddress]struct{})
}
