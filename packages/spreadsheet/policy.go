package spreadsheet

import "fmt"

// ReferencePolicy decides whether the formula in current may read target.
// single cells are passed as one-cell ranges. it is only consulted for
// references into the formula sheet; the raw sheet is always readable.
type ReferencePolicy func(target RangeAddress, current CellAddress) bool

// AllowAll permits every reference
func AllowAll(target RangeAddress, current CellAddress) bool {
	return true
}

// SameRowLeftward permits references that stay on the current row and lie
// strictly left of the current column
func SameRowLeftward(target RangeAddress, current CellAddress) bool {
	return target.StartRow == current.Row &&
		target.EndRow == current.Row &&
		target.EndCol < current.Col
}

const (
	PolicyAny             = "any"
	PolicySameRowLeftward = "same_row_leftward"
)

// PolicyByName resolves a configured policy name. "" means PolicyAny.
func PolicyByName(name string) (ReferencePolicy, error) {
	switch name {
	case "", PolicyAny:
		return AllowAll, nil
	case PolicySameRowLeftward:
		return SameRowLeftward, nil
	default:
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unknown reference policy %q", name))
	}
}
