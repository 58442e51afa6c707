package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind is the closed set of value types a formula can produce.
// kinds:
//   - KindText: text values, including the blank value ""
//   - KindNumber: numeric values (integers are represented as float64)
//   - KindList: the cells of an expanded range, in row-major order
type ValueKind uint8

const (
	KindText ValueKind = iota
	KindNumber
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "text"
	}
}

// Value is a computed cell value. the zero value is blank text.
type Value struct {
	kind ValueKind
	num  float64
	text string
	list []Value
}

// Number returns a numeric value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Text returns a text value
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// List returns a list value holding the given items
func List(items []Value) Value {
	return Value{kind: KindList, list: items}
}

// Blank is the empty text value used for missing or unreadable cells
var Blank = Text("")

func (v Value) Kind() ValueKind {
	return v.kind
}

// Num returns the numeric payload; zero unless Kind is KindNumber
func (v Value) Num() float64 {
	return v.num
}

// Items returns the list payload; nil unless Kind is KindList
func (v Value) Items() []Value {
	return v.list
}

// IsBlank reports whether v is the empty text value
func (v Value) IsBlank() bool {
	return v.kind == KindText && v.text == ""
}

// String renders v the way it appears in an output cell. lists have no
// scalar form and render as "".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindText:
		return v.text
	default:
		return ""
	}
}

// GoString is used by test failure output
func (v Value) GoString() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("Number(%s)", formatNumber(v.num))
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.GoString()
		}
		return fmt.Sprintf("List(%s)", strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("Text(%q)", v.text)
	}
}

// Equal reports whether two values have the same kind and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	default:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
}

// formatNumber writes numbers without unnecessary decimals, so 3.0 is "3"
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions. here they classify non-fatal diagnostics; they are
// never written into cells.
type ErrorCode uint8

const (
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function name
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return "#ERROR!"
}

// Diagnostic records a local degradation: the cell still gets a value
// ("" or 0) and evaluation continues.
type Diagnostic struct {
	Address CellAddress
	Code    ErrorCode
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Address, d.Code, d.Message)
}
