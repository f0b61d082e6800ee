package entities

// ActiveSet is the unordered collection of participant indices still eligible
// to win a raffle. It is populated exactly once, with 1..n, when the pool
// activates. Removal is swap-and-pop: the victim is replaced by the last
// element and the slice shrinks by one. The element order is therefore
// arbitrary but stable between a read and the removal that follows it, which
// is what the modulo draw in DrawWinner relies on.
type ActiveSet struct {
	indices []int
}

// NewActiveSet returns an active set holding indices 1..n
func NewActiveSet(n int) *ActiveSet {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i + 1
	}
	return &ActiveSet{indices: indices}
}

// RestoreActiveSet rebuilds an active set from persisted indices
func RestoreActiveSet(indices []int) *ActiveSet {
	s := &ActiveSet{indices: make([]int, len(indices))}
	copy(s.indices, indices)
	return s
}

// Len returns the number of still-eligible indices
func (s *ActiveSet) Len() int {
	return len(s.indices)
}

// Indices returns a copy of the remaining indices
func (s *ActiveSet) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// Contains reports whether index is still eligible
func (s *ActiveSet) Contains(index int) bool {
	for _, idx := range s.indices {
		if idx == index {
			return true
		}
	}
	return false
}

// DrawWinner picks the element at position randomValue mod len and removes it
func (s *ActiveSet) DrawWinner(randomValue uint64) (int, error) {
	if len(s.indices) == 0 {
		return 0, stateError("no eligible participants remain in the active set")
	}
	pos := int(randomValue % uint64(len(s.indices)))
	winner := s.indices[pos]
	s.removeAt(pos)
	return winner, nil
}

// Remove drops index from the set if present and reports whether it was
func (s *ActiveSet) Remove(index int) bool {
	for pos, idx := range s.indices {
		if idx == index {
			s.removeAt(pos)
			return true
		}
	}
	return false
}

func (s *ActiveSet) removeAt(pos int) {
	last := len(s.indices) - 1
	s.indices[pos] = s.indices[last]
	s.indices = s.indices[:last]
}

func (s *ActiveSet) clone() *ActiveSet {
	return RestoreActiveSet(s.indices)
}
