package domain

import (
	"fmt"
)

// Universe is an ordered asset list with O(1) symbol lookup. The ordering
// is the shared invariant between an expected-return vector and a
// covariance matrix: both are always indexed by the same Universe and are
// never reordered independently.
type Universe struct {
	symbols []string
	index   map[string]int
}

// NewUniverse builds a Universe from an ordered symbol list.
// Duplicate or empty symbols are rejected.
func NewUniverse(symbols []string) (*Universe, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty asset universe", ErrDimensionMismatch)
	}

	index := make(map[string]int, len(symbols))
	ordered := make([]string, len(symbols))
	for i, symbol := range symbols {
		if symbol == "" {
			return nil, fmt.Errorf("%w: empty symbol at position %d", ErrDimensionMismatch, i)
		}
		if _, dup := index[symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrDimensionMismatch, symbol)
		}
		index[symbol] = i
		ordered[i] = symbol
	}

	return &Universe{symbols: ordered, index: index}, nil
}

// Len returns the number of assets.
func (u *Universe) Len() int {
	return len(u.symbols)
}

// Symbols returns the ordered symbol list. The returned slice is a copy.
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// Index returns the position of symbol in the ordering.
func (u *Universe) Index(symbol string) (int, bool) {
	i, ok := u.index[symbol]
	return i, ok
}

// Contains reports whether symbol is part of the universe.
func (u *Universe) Contains(symbol string) bool {
	_, ok := u.index[symbol]
	return ok
}

// Statistics pairs an annualized expected-return vector with an annualized
// covariance matrix over the same Universe. Constructed only by the
// statistics engine so the pairing invariant cannot be broken by hand.
type Statistics struct {
	Universe       *Universe
	ExpectedReturn []float64   // annualized, indexed by Universe
	Covariance     [][]float64 // annualized, symmetric, indexed by Universe
	PeriodsPerYear int
	Observations   int
	Shrinkage      float64 // applied shrinkage intensity in [0, 1]
}

// Validate checks the μ/Σ/universe alignment.
func (s *Statistics) Validate() error {
	n := s.Universe.Len()
	if len(s.ExpectedReturn) != n {
		return fmt.Errorf("%w: expected return vector has %d entries for %d assets", ErrDimensionMismatch, len(s.ExpectedReturn), n)
	}
	if len(s.Covariance) != n {
		return fmt.Errorf("%w: covariance matrix has %d rows for %d assets", ErrDimensionMismatch, len(s.Covariance), n)
	}
	for i, row := range s.Covariance {
		if len(row) != n {
			return fmt.Errorf("%w: covariance row %d has %d columns for %d assets", ErrDimensionMismatch, i, len(row), n)
		}
	}
	return nil
}
