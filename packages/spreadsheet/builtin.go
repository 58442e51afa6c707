package spreadsheet

import (
	"math"
	"strconv"
	"strings"
)

// Function is the closed set of functions formulas may call. names that
// are not listed resolve to FuncUnknown, which evaluates to "".
type Function uint8

const (
	FuncUnknown Function = iota
	FuncIF
	FuncSUM
	FuncCOUNT
	FuncTEXT
	FuncCONCAT
)

var functionNames = map[string]Function{
	"IF":     FuncIF,
	"SUM":    FuncSUM,
	"COUNT":  FuncCOUNT,
	"TEXT":   FuncTEXT,
	"CONCAT": FuncCONCAT,
}

// LookupFunction resolves a function name case-insensitively
func LookupFunction(name string) Function {
	if fn, ok := functionNames[strings.ToUpper(name)]; ok {
		return fn
	}
	return FuncUnknown
}

func (f Function) String() string {
	for name, fn := range functionNames {
		if fn == f {
			return name
		}
	}
	return "UNKNOWN"
}

// BuiltInFunctions evaluates calls to the function library. arguments are
// already evaluated, left to right, before the call.
type BuiltInFunctions struct{}

// NewDefaultBuiltInFunctions creates the function library
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{}
}

// Call invokes fn with the given arguments. name is the spelling used in
// the formula and only appears in diagnostics.
func (bf *BuiltInFunctions) Call(ctx *EvalContext, fn Function, name string, args []Value) Value {
	switch fn {
	case FuncIF:
		return bf.IF(args)
	case FuncSUM:
		return bf.SUM(args)
	case FuncCOUNT:
		return bf.COUNT(args)
	case FuncTEXT:
		return bf.TEXT(ctx, args)
	case FuncCONCAT:
		return bf.CONCAT(ctx, args)
	default:
		ctx.diagnose(ErrorCodeName, "unknown function %s", name)
		return Blank
	}
}

// IF returns the second argument when the first is truthy, else the
// third. missing branches are "".
func (bf *BuiltInFunctions) IF(args []Value) Value {
	cond := len(args) > 0 && isTruthy(args[0])
	branch := 2
	if cond {
		branch = 1
	}
	if branch < len(args) {
		return args[branch]
	}
	return Blank
}

// SUM adds every argument and every element of list arguments that
// coerces to a number; the rest are skipped
func (bf *BuiltInFunctions) SUM(args []Value) Value {
	total := 0.0
	for _, item := range flatten(args) {
		if num, ok := toNumber(item); ok {
			total += num
		}
	}
	return Number(total)
}

// COUNT counts the non-blank elements across all arguments, flattening
// lists
func (bf *BuiltInFunctions) COUNT(args []Value) Value {
	count := 0
	for _, item := range flatten(args) {
		if !item.IsBlank() {
			count++
		}
	}
	return Number(float64(count))
}

// TEXT returns the string form of its first argument
func (bf *BuiltInFunctions) TEXT(ctx *EvalContext, args []Value) Value {
	if len(args) == 0 {
		return Blank
	}
	return Text(ctx.scalarText(args[0]))
}

// CONCAT joins the string forms of its arguments, flattening lists
func (bf *BuiltInFunctions) CONCAT(ctx *EvalContext, args []Value) Value {
	var sb strings.Builder
	for _, item := range flatten(args) {
		sb.WriteString(ctx.scalarText(item))
	}
	return Text(sb.String())
}

// flatten expands list arguments one level, preserving order
func flatten(args []Value) []Value {
	out := make([]Value, 0, len(args))
	for _, arg := range args {
		if arg.Kind() == KindList {
			out = append(out, arg.Items()...)
			continue
		}
		out = append(out, arg)
	}
	return out
}

// toNumber coerces numbers and numeric text. surrounding whitespace is
// ignored; blank text, other text and lists do not coerce.
func toNumber(value Value) (float64, bool) {
	switch value.Kind() {
	case KindNumber:
		return value.Num(), true
	case KindText:
		s := strings.TrimSpace(value.String())
		if s == "" || isHexLiteral(s) || strings.ContainsRune(s, '_') {
			return 0, false
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(num, 0) || math.IsNaN(num) {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}

func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// isTruthy: non-zero numbers, non-empty text and non-empty lists are true.
// the text "0" is true.
func isTruthy(value Value) bool {
	switch value.Kind() {
	case KindNumber:
		return value.Num() != 0
	case KindList:
		return len(value.Items()) > 0
	default:
		return value.String() != ""
	}
}
