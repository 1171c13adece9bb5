package chip

// Selection is an insertion-ordered set of block addresses. The first
// address is the anchor of the selection. The zero value is empty.
type Selection struct {
	order []Address
	index map[Address]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{index: make(map[Address]struct{})}
}

// Add appends a if it is not already selected. It reports whether the
// selection changed.
func (s *Selection) Add(a Address) bool {
	if _, ok := s.index[a]; ok {
		return false
	}
	if s.index == nil {
		s.index = make(map[Address]struct{})
	}
	s.index[a] = struct{}{}
	s.order = append(s.order, a)
	return true
}

// Remove drops a from the selection, keeping the order of the rest.
func (s *Selection) Remove(a Address) bool {
	if _, ok := s.index[a]; !ok {
		return false
	}
	delete(s.index, a)
	for i, o := range s.order {
		if o == a {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Toggle removes a if present and adds it otherwise. It reports whether a
// is selected afterwards.
func (s *Selection) Toggle(a Address) bool {
	if s.Remove(a) {
		return false
	}
	s.Add(a)
	return true
}

// Contains reports whether a is selected.
func (s *Selection) Contains(a Address) bool {
	_, ok := s.index[a]
	return ok
}

// Len returns the number of selected blocks.
func (s *Selection) Len() int { return len(s.order) }

// Clear empties the selection.
func (s *Selection) Clear() {
	s.order = nil
	s.index = make(map[Address]struct{})
}

// Addresses returns a copy of the selected addresses in insertion order.
func (s *Selection) Addresses() []Address {
	out := make([]Address, len(s.order))
	copy(out, s.order)
	return out
}

// Anchor returns the first selected address.
func (s *Selection) Anchor() (Address, bool) {
	if len(s.order) == 0 {
		return Address{}, false
	}
	return s.order[0], true
}

// Last returns the most recently selected address.
func (s *Selection) Last() (Address, bool) {
	if len(s.order) == 0 {
		return Address{}, false
	}
	return s.order[len(s.order)-1], true
}
