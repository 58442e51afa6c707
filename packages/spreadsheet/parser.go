package spreadsheet

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// AST enables dependency extraction and formula deduplication through tree
// traversal rather than string manipulation.
type ASTNode interface {
	Eval(ctx *EvalContext) Value
	GetPosition() NodePosition
	ToString() string
}

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

var binaryOpSymbols = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

var binaryOpsBySymbol = func() map[string]BinaryOp {
	m := make(map[string]BinaryOp, len(binaryOpSymbols))
	for op, sym := range binaryOpSymbols {
		m[sym] = op
	}
	return m
}()

func (op BinaryOp) String() string {
	return binaryOpSymbols[op]
}

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
)

// Parser parses tokens into an AST. it never fails: anything it cannot
// place becomes a string literal, and tokens left after the expression are
// ignored.
type Parser struct {
	tokens []Token
	pos    int
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(ctx *EvalContext) Value {
	return Text(n.Value)
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	// escape quotes in string
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal. malformed literals such as
// "1.2.3" have Value 0. a literal beyond float64 range is OutOfRange and
// evaluates to its own text.
type NumberNode struct {
	Literal    string
	Value      float64
	OutOfRange bool
	Position   NodePosition
}

func (n *NumberNode) Eval(ctx *EvalContext) Value {
	if n.OutOfRange {
		ctx.diagnose(ErrorCodeValue, "number %s is out of range, kept as text", n.Literal)
		return Text(n.Literal)
	}
	return Number(n.Value)
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	if n.OutOfRange {
		return n.Literal
	}
	return formatNumber(n.Value)
}

// CellRefNode represents a single cell reference such as A1 or Raw!$B$2
type CellRefNode struct {
	Ref      string
	Address  CellAddress
	Position NodePosition
}

func (n *CellRefNode) Eval(ctx *EvalContext) Value {
	return ctx.cellValue(n.Address)
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return n.Address.String()
}

// RangeNode represents a range reference such as A1:B3. it evaluates to a
// List in row-major order.
type RangeNode struct {
	StartRef string
	EndRef   string
	Range    RangeAddress
	Position NodePosition
}

func (n *RangeNode) Eval(ctx *EvalContext) Value {
	return ctx.rangeValue(n.Range)
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Range.String()
}

// BinaryOpNode represents arithmetic and concatenation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) Value {
	// both sides are always evaluated, left first
	leftVal := n.Left.Eval(ctx)
	rightVal := n.Right.Eval(ctx)

	if n.Op == BinOpConcat {
		return Text(ctx.scalarText(leftVal) + ctx.scalarText(rightVal))
	}

	leftNum, leftOk := toNumber(leftVal)
	rightNum, rightOk := toNumber(rightVal)
	if leftOk && rightOk {
		switch n.Op {
		case BinOpAdd:
			return Number(leftNum + rightNum)
		case BinOpSubtract:
			return Number(leftNum - rightNum)
		case BinOpMultiply:
			return Number(leftNum * rightNum)
		case BinOpDivide:
			if rightNum == 0 {
				ctx.diagnose(ErrorCodeDiv0, "division by zero evaluates to 0")
				return Number(0)
			}
			return Number(leftNum / rightNum)
		}
	}

	// + falls back to concatenation, the other operators to zero
	if n.Op == BinOpAdd {
		ctx.diagnose(ErrorCodeValue, "non-numeric operands to +, concatenating")
		return Text(ctx.scalarText(leftVal) + ctx.scalarText(rightVal))
	}
	ctx.diagnose(ErrorCodeValue, "non-numeric operands to %s evaluate to 0", n.Op)
	return Number(0)
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), n.Op, n.Right.ToString())
}

// ComparisonNode compares two values without coercion and yields 1 or 0
type ComparisonNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *ComparisonNode) Eval(ctx *EvalContext) Value {
	leftVal := n.Left.Eval(ctx)
	rightVal := n.Right.Eval(ctx)

	var result bool
	switch n.Op {
	case BinOpEqual:
		result = leftVal.Equal(rightVal)
	case BinOpNotEqual:
		result = !leftVal.Equal(rightVal)
	default:
		// NaN orders false against everything
		if isNaN(leftVal) || isNaN(rightVal) {
			return Number(0)
		}
		order, ok := compareValues(leftVal, rightVal)
		if !ok {
			ctx.diagnose(ErrorCodeValue, "cannot order %s and %s", leftVal.Kind(), rightVal.Kind())
			return Number(0)
		}
		switch n.Op {
		case BinOpLess:
			result = order < 0
		case BinOpLessEqual:
			result = order <= 0
		case BinOpGreater:
			result = order > 0
		case BinOpGreaterEqual:
			result = order >= 0
		}
	}

	if result {
		return Number(1)
	}
	return Number(0)
}

func (n *ComparisonNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ComparisonNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), n.Op, n.Right.ToString())
}

// compareValues orders two numbers or two texts. any other pairing has no
// order.
func compareValues(left, right Value) (int, bool) {
	switch {
	case left.Kind() == KindNumber && right.Kind() == KindNumber:
		return cmp.Compare(left.Num(), right.Num()), true
	case left.Kind() == KindText && right.Kind() == KindText:
		return strings.Compare(left.String(), right.String()), true
	default:
		return 0, false
	}
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) Value {
	val := n.Operand.Eval(ctx)

	// non-numeric operands pass through unchanged
	num, ok := toNumber(val)
	if !ok {
		return val
	}
	if n.Op == UnaryOpMinus {
		return Number(-num)
	}
	return Number(num)
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	if n.Op == UnaryOpMinus {
		return "-" + n.Operand.ToString()
	}
	return "+" + n.Operand.ToString()
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string // as written
	Func     Function
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) Value {
	// every argument is evaluated, IF included
	args := make([]Value, len(n.Args))
	for i, argNode := range n.Args {
		args[i] = argNode.Eval(ctx)
	}

	return ctx.functions().Call(ctx, n.Func, n.Name, args)
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(n.Name), strings.Join(args, ","))
}

// NewParser creates a new parser over the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		pos:    0,
	}
}

// Parse is shorthand for NewParser(tokens).Parse()
func Parse(tokens []Token) ASTNode {
	return NewParser(tokens).Parse()
}

// ParseFormula tokenizes and parses a formula body (the text after "=")
func ParseFormula(body string) ASTNode {
	return Parse(Tokenize(body))
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() ASTNode {
	return p.parseComparison()
}

func (p *Parser) peek(offset int) (Token, bool) {
	if p.pos+offset < len(p.tokens) {
		return p.tokens[p.pos+offset], true
	}
	return Token{}, false
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() ASTNode {
	left := p.parseTerm()

	for {
		tok, ok := p.peek(0)
		if !ok || tok.Type != TokenCmp {
			break
		}
		p.pos++
		right := p.parseTerm()
		left = &ComparisonNode{
			Op:       binaryOpsBySymbol[tok.Value],
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left
}

// parseTerm handles + - and &, which share one precedence level
func (p *Parser) parseTerm() ASTNode {
	left := p.parseFactor()

	for {
		tok, ok := p.peek(0)
		if !ok || tok.Type != TokenOp || (tok.Value != "+" && tok.Value != "-" && tok.Value != "&") {
			break
		}
		p.pos++
		right := p.parseFactor()
		left = &BinaryOpNode{
			Op:       binaryOpsBySymbol[tok.Value],
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left
}

// parseFactor handles * and /
func (p *Parser) parseFactor() ASTNode {
	left := p.parseUnary()

	for {
		tok, ok := p.peek(0)
		if !ok || tok.Type != TokenOp || (tok.Value != "*" && tok.Value != "/") {
			break
		}
		p.pos++
		right := p.parseUnary()
		left = &BinaryOpNode{
			Op:       binaryOpsBySymbol[tok.Value],
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left
}

// parseUnary handles prefix + and -, which may repeat
func (p *Parser) parseUnary() ASTNode {
	tok, ok := p.peek(0)
	if !ok || tok.Type != TokenOp || (tok.Value != "+" && tok.Value != "-") {
		return p.parsePrimary()
	}
	p.pos++

	operand := p.parseUnary()
	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}
}

// parsePrimary handles literals, references, function calls and
// parentheses. exhausted input yields an empty string literal.
func (p *Parser) parsePrimary() ASTNode {
	tok, ok := p.peek(0)
	if !ok {
		end := 0
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			end = last.Pos + len([]rune(last.Value))
		}
		return &StringNode{Value: "", Position: NodePosition{Start: end, End: end}}
	}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		// malformed numbers such as 1.2.3 are worth 0
		val, err := strconv.ParseFloat(tok.Value, 64)
		outOfRange := errors.Is(err, strconv.ErrRange) && math.IsInf(val, 0)
		if err != nil {
			val = 0
		}
		return &NumberNode{
			Literal:    tok.Value,
			Value:      val,
			OutOfRange: outOfRange,
			Position:   tokenPosition(tok),
		}

	case TokenIdent:
		if next, ok := p.peek(1); ok && next.is(TokenSymbol, "(") {
			return p.parseFunctionCall()
		}
		if IsCellReference(tok.Value) {
			if next, ok := p.peek(1); ok && next.is(TokenSymbol, ":") {
				return p.parseRange()
			}
			p.pos++
			return &CellRefNode{
				Ref:      tok.Value,
				Address:  ParseAddress(tok.Value),
				Position: tokenPosition(tok),
			}
		}
		// bare identifiers are text
		p.pos++
		return &StringNode{Value: tok.Value, Position: tokenPosition(tok)}

	case TokenSymbol:
		if tok.Value == "(" {
			p.pos++
			node := p.parseComparison()
			// a missing closing parenthesis is tolerated
			if next, ok := p.peek(0); ok && next.is(TokenSymbol, ")") {
				p.pos++
			}
			return node
		}
	}

	// strings, and any token that cannot start an expression, are text
	p.pos++
	return &StringNode{Value: tok.Value, Position: tokenPosition(tok)}
}

// parseFunctionCall parses NAME( args ). arguments are separated by commas;
// the closing parenthesis may be missing at end of input.
func (p *Parser) parseFunctionCall() ASTNode {
	funcTok := p.tokens[p.pos]
	p.pos += 2 // name and "("

	args := []ASTNode{}
	end := funcTok.Pos + len([]rune(funcTok.Value)) + 1

	if next, ok := p.peek(0); ok && next.is(TokenSymbol, ")") {
		p.pos++
		end = next.Pos + 1
	} else {
		for p.pos < len(p.tokens) {
			arg := p.parseComparison()
			args = append(args, arg)
			end = arg.GetPosition().End

			next, ok := p.peek(0)
			if !ok {
				break
			}
			if next.is(TokenSymbol, ",") {
				p.pos++
				continue
			}
			if next.is(TokenSymbol, ")") {
				p.pos++
				end = next.Pos + 1
				break
			}
		}
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Func:     LookupFunction(funcTok.Value),
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: end},
	}
}

// parseRange parses START : END. the end token is taken as written whatever
// its type, and may be missing.
func (p *Parser) parseRange() ASTNode {
	startTok := p.tokens[p.pos]
	endRef := ""
	end := startTok.Pos + len([]rune(startTok.Value)) + 1
	if endTok, ok := p.peek(2); ok {
		endRef = endTok.Value
		end = endTok.Pos + len([]rune(endTok.Value))
	}
	p.pos = min(p.pos+3, len(p.tokens))

	return &RangeNode{
		StartRef: startTok.Value,
		EndRef:   endRef,
		Range:    ParseRange(startTok.Value, endRef),
		Position: NodePosition{Start: startTok.Pos, End: end},
	}
}

func tokenPosition(tok Token) NodePosition {
	return NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}
}

func isNaN(v Value) bool {
	return v.Kind() == KindNumber && math.IsNaN(v.Num())
}
