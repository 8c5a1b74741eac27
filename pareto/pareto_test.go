package pareto

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominates(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		dirs Directions
		want bool
	}{
		{"strictly better", []float64{1, 1}, []float64{2, 2}, nil, true},
		{"better in one", []float64{1, 2}, []float64{2, 2}, nil, true},
		{"equal", []float64{1, 1}, []float64{1, 1}, nil, false},
		{"trade-off", []float64{1, 3}, []float64{2, 2}, nil, false},
		{"worse", []float64{3, 3}, []float64{2, 2}, nil, false},
		{"maximize", []float64{3, 3}, []float64{2, 2}, Directions{Maximize, Maximize}, true},
		{"mixed", []float64{1, 3}, []float64{2, 2}, Directions{Minimize, Maximize}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dominates(tt.a, tt.b, tt.dirs))
		})
	}
}

func TestNonDominated_Ties(t *testing.T) {
	got := NonDominated([][]float64{{1, 1}, {1, 1}, {2, 2}}, nil)
	assert.Equal(t, []bool{true, true, false}, got)

	// A strictly better point removes both tied points.
	got = NonDominated([][]float64{{1, 1}, {1, 1}, {0, 0}}, nil)
	assert.Equal(t, []bool{false, false, true}, got)
}

func TestRecompute(t *testing.T) {
	rows := []Row{
		{ID: 1, Y: []float64{2, 2}},
		{ID: 2, Y: []float64{1, 1}},
		{ID: 3, Y: []float64{math.NaN(), math.NaN()}},
		{ID: 4, Y: []float64{0.5, 3}},
	}

	set := Recompute(rows, nil)
	assert.Equal(t, []uint64{2, 4}, set.ToArray())

	set = Recompute(nil, nil)
	assert.True(t, set.IsEmpty())
}

func TestRecompute_BruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 50; iter++ {
		nObj := 1 + rng.Intn(3)
		dirs := make(Directions, nObj)
		for i := range dirs {
			dirs[i] = Direction(rng.Intn(2))
		}

		rows := make([]Row, 40)
		for i := range rows {
			y := make([]float64, nObj)
			for j := range y {
				// Coarse values produce ties.
				y[j] = float64(rng.Intn(5))
			}
			if rng.Intn(6) == 0 {
				y[0] = math.NaN()
			}
			rows[i] = Row{ID: uint64(i + 1), Y: y}
		}

		set := Recompute(rows, dirs)
		for _, r := range rows {
			want := Valid(r.Y)
			for _, o := range rows {
				if !want {
					break
				}
				if o.ID == r.ID || !Valid(o.Y) {
					continue
				}
				if bruteDominates(o.Y, r.Y, dirs) {
					want = false
				}
			}
			require.Equal(t, want, set.Contains(r.ID), "iter %d row %d", iter, r.ID)
		}
	}
}

func bruteDominates(a, b []float64, dirs Directions) bool {
	strict := false
	for i := range a {
		x, y := a[i], b[i]
		if dirs[i] == Maximize {
			x, y = -x, -y
		}
		if x > y {
			return false
		}
		if x < y {
			strict = true
		}
	}
	return strict
}

func TestFromMinimize(t *testing.T) {
	d, err := FromMinimize(nil, 3)
	require.NoError(t, err)
	assert.Equal(t, Directions{Minimize, Minimize, Minimize}, d)

	d, err = FromMinimize([]bool{false}, 2)
	require.NoError(t, err)
	assert.Equal(t, Directions{Maximize, Maximize}, d)

	d, err = FromMinimize([]bool{true, false}, 2)
	require.NoError(t, err)
	assert.Equal(t, Directions{Minimize, Maximize}, d)

	_, err = FromMinimize([]bool{true, false}, 3)
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]float64{1, 2}))
	assert.False(t, Valid([]float64{1, math.NaN()}))
	assert.False(t, Valid(nil))
}
