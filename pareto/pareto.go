package pareto

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Direction is the optimization sense of one objective.
type Direction int8

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Directions holds one Direction per objective.
type Directions []Direction

// FromMinimize builds Directions from per-objective minimize flags. An empty
// slice minimizes all n objectives; a single flag is applied to all of them.
func FromMinimize(minimize []bool, n int) (Directions, error) {
	dirs := make(Directions, n)
	switch len(minimize) {
	case 0:
		return dirs, nil
	case 1:
		if !minimize[0] {
			for i := range dirs {
				dirs[i] = Maximize
			}
		}
		return dirs, nil
	case n:
		for i, m := range minimize {
			if !m {
				dirs[i] = Maximize
			}
		}
		return dirs, nil
	}
	return nil, fmt.Errorf("pareto: %d minimize flags for %d objectives", len(minimize), n)
}

// Row is a valid row id together with its objective vector.
type Row struct {
	ID uint64
	Y  []float64
}

// Dominates reports whether a dominates b: a is no worse in every objective
// and strictly better in at least one. dirs may be nil to minimize all.
func Dominates(a, b []float64, dirs Directions) bool {
	better := false
	for i := range a {
		ai, bi := oriented(a[i], dirs, i), oriented(b[i], dirs, i)
		if ai > bi {
			return false
		}
		if ai < bi {
			better = true
		}
	}
	return better
}

func oriented(v float64, dirs Directions, i int) float64 {
	if i < len(dirs) && dirs[i] == Maximize {
		return -v
	}
	return v
}

// NonDominated reports for each point whether no other point dominates it.
// Identical points do not dominate each other.
func NonDominated(points [][]float64, dirs Directions) []bool {
	out := make([]bool, len(points))
	for i := range points {
		out[i] = true
		for j := range points {
			if i != j && Dominates(points[j], points[i], dirs) {
				out[i] = false
				break
			}
		}
	}
	return out
}

// Recompute returns the ids of the Pareto-optimal rows. Rows whose objective
// vector contains NaN are not valid and are ignored.
func Recompute(rows []Row, dirs Directions) *roaring64.Bitmap {
	valid := make([]Row, 0, len(rows))
	for _, r := range rows {
		if Valid(r.Y) {
			valid = append(valid, r)
		}
	}

	points := make([][]float64, len(valid))
	for i, r := range valid {
		points[i] = r.Y
	}

	set := roaring64.New()
	for i, ok := range NonDominated(points, dirs) {
		if ok {
			set.Add(valid[i].ID)
		}
	}
	return set
}

// Valid reports whether y is a complete objective vector.
func Valid(y []float64) bool {
	if len(y) == 0 {
		return false
	}
	for _, v := range y {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
