package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CellAddress identifies a cell by sheet name and zero-based row and
// column. an empty Sheet means "the sheet that owns the formula". a
// negative Row or Col marks a malformed reference; such cells read as
// blank.
type CellAddress struct {
	Sheet string
	Row   int
	Col   int
}

// Valid reports whether both coordinates are non-negative
func (a CellAddress) Valid() bool {
	return a.Row >= 0 && a.Col >= 0
}

// String renders the address in A1 notation, with a sheet prefix when set
func (a CellAddress) String() string {
	var cell string
	if a.Valid() {
		cell = IndexToLetters(a.Col) + strconv.Itoa(a.Row+1)
	} else {
		cell = ErrorMapper[ErrorCodeRef]
	}
	if a.Sheet == "" {
		return cell
	}
	return quoteSheetName(a.Sheet) + "!" + cell
}

// RC renders the address as Sheet!R{row}C{col} using 1-based coordinates
func (a CellAddress) RC() string {
	return fmt.Sprintf("%s!R%dC%d", a.Sheet, a.Row+1, a.Col+1)
}

// ParseAddress parses "A1", "$B$2", "Sheet!C3" or "'My Sheet'!D4". it never
// fails: malformed column letters or row digits produce -1 for that
// coordinate.
func ParseAddress(text string) CellAddress {
	sheet, cell := splitSheet(text)
	cell = strings.ReplaceAll(cell, "$", "")

	// find where letters end and digits begin
	letterEnd := 0
	for i, ch := range cell {
		if !unicode.IsLetter(ch) {
			break
		}
		letterEnd = i + utf8.RuneLen(ch)
	}

	addr := CellAddress{Sheet: sheet, Row: -1, Col: -1}
	if letterEnd > 0 {
		addr.Col = LettersToIndex(cell[:letterEnd])
	}
	rowStr := cell[letterEnd:]
	if isDigits(rowStr) {
		if n, err := strconv.Atoi(rowStr); err == nil {
			addr.Row = n - 1 // 1-based in notation
		}
	}
	return addr
}

// IsCellReference reports whether text has the shape of a cell reference:
// an optional sheet prefix, then letters followed by decimal digits, with
// any "$" ignored.
func IsCellReference(text string) bool {
	_, cell := splitSheet(text)
	cell = strings.ReplaceAll(cell, "$", "")

	i := 0
	for _, ch := range cell {
		if !unicode.IsLetter(ch) {
			break
		}
		i += utf8.RuneLen(ch)
	}
	if i == 0 {
		return false
	}
	return isDigits(cell[i:])
}

// LettersToIndex converts base-26 column letters to a zero-based index
// (A=0, Z=25, AA=26). letters outside A-Z yield -1.
func LettersToIndex(letters string) int {
	if letters == "" {
		return -1
	}
	idx := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return -1
		}
		idx = idx*26 + int(ch-'A') + 1
		if idx > maxColumnIndex {
			return -1
		}
	}
	return idx - 1
}

// IndexToLetters converts a zero-based column index to base-26 letters.
// negative indexes yield "".
func IndexToLetters(idx int) string {
	if idx < 0 {
		return ""
	}
	var buf []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// columns beyond this are treated as malformed
const maxColumnIndex = 1 << 40

// splitSheet splits "Sheet!A1" at the first "!" and unquotes the sheet name
func splitSheet(text string) (sheet, cell string) {
	if strings.HasPrefix(text, "'") {
		// quoted names may contain "!"
		if end := closingQuote(text); end > 0 && end+1 < len(text) && text[end+1] == '!' {
			return strings.ReplaceAll(text[1:end], "''", "'"), text[end+2:]
		}
	}
	name, rest, found := strings.Cut(text, "!")
	if !found {
		return "", text
	}
	return name, rest
}

// closingQuote returns the byte offset of the quote closing a name that
// starts at text[0], or -1
func closingQuote(text string) int {
	for i := 1; i < len(text); i++ {
		if text[i] != '\'' {
			continue
		}
		if i+1 < len(text) && text[i+1] == '\'' {
			i++
			continue
		}
		return i
	}
	return -1
}

func quoteSheetName(name string) string {
	for _, ch := range name {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
