package chip

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Address identifies one block of a chip by row and column.
type Address struct {
	Row int
	Col int
}

// String renders the address as "row:col".
func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Row, a.Col)
}

// ParseAddress parses a "row:col" address.
func ParseAddress(s string) (Address, error) {
	r, c, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Address{}, fmt.Errorf("invalid block address %q, want row:col", s)
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return Address{}, fmt.Errorf("invalid block address %q, want row:col", s)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return Address{}, fmt.Errorf("invalid block address %q, want row:col", s)
	}
	return Address{Row: row, Col: col}, nil
}

// MarshalJSON encodes the address as a [row, col] pair.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{a.Row, a.Col})
}

// UnmarshalJSON decodes a [row, col] pair.
func (a *Address) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode block address: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode block address: want [row, col], got %d values", len(pair))
	}
	a.Row, a.Col = pair[0], pair[1]
	return nil
}
