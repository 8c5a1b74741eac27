package paretodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/rowstore"
)

var backends = []string{rowstore.KindMemory, rowstore.KindSQLite}

// forEachBackend runs fn once per row store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, kind string)) {
	for _, kind := range backends {
		t.Run(kind, func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func testDir(t *testing.T, kind string) string {
	if kind == rowstore.KindMemory {
		return ""
	}
	return t.TempDir()
}

// newTestLedger returns a ledger with an initialized schema for a problem
// with two variables and two minimized objectives.
func newTestLedger(t *testing.T, kind string, optFns ...Option) *Ledger {
	t.Helper()
	return newTestLedgerWith(t, kind, Config{NVar: 2, NObj: 2, Minimize: []bool{true, true}}, optFns...)
}

func newTestLedgerWith(t *testing.T, kind string, cfg Config, optFns ...Option) *Ledger {
	t.Helper()

	cfg.Dir = testDir(t, kind)
	l := New(append([]Option{WithRowStore(kind)}, optFns...)...)
	require.NoError(t, l.Configure(cfg))
	require.NoError(t, l.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = l.Quit() })
	return l
}

// seedScenario seeds X=[[0,0],[1,1]] with Y=[[2,2],[1,1]].
func seedScenario(t *testing.T, l *Ledger) []int64 {
	t.Helper()

	ids, err := l.InitializeData(context.Background(),
		[][]float64{{0, 0}, {1, 1}},
		[][]float64{{2, 2}, {1, 1}},
	)
	require.NoError(t, err)
	return ids
}

func mustCounters(t *testing.T, l *Ledger) Counters {
	t.Helper()
	c, err := l.Counters()
	require.NoError(t, err)
	return c
}

func mustFlags(t *testing.T, l *Ledger) (opt, eval bool) {
	t.Helper()
	opt, err := l.CheckOptDone()
	require.NoError(t, err)
	eval, err = l.CheckEvalDone()
	require.NoError(t, err)
	return opt, eval
}
