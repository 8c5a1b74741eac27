package paretodb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/schema"
)

const (
	helperEnv      = "PARETODB_LEDGER_HELPER"
	helperDirEnv   = "PARETODB_LEDGER_DIR"
	helperBatches  = 5
	helperBatchLen = 3
)

// TestLedgerHelperProcess is not a real test. It is the body of the worker
// processes started by TestLedger_MultiProcess.
func TestLedgerHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}

	if err := runHelper(os.Getenv(helperDirEnv)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func runHelper(dir string) error {
	ctx := context.Background()
	l := New(WithLockTimeout(30 * time.Second))
	defer l.Quit()

	if err := l.Configure(Config{Dir: dir, NVar: 2, NObj: 2}); err != nil {
		return err
	}
	if err := l.Attach(ctx); err != nil {
		return err
	}

	pid := float64(os.Getpid())
	for b := range helperBatches {
		x := make([][]float64, helperBatchLen)
		for i := range x {
			x[i] = []float64{pid, float64(b)}
		}
		ids, err := l.Insert(ctx, x, nil, nil, int64(os.Getpid()))
		if err != nil {
			return err
		}
		// Evaluate the first row of every batch right away.
		if err := l.Update(ctx, []float64{float64(ids[0]), -float64(ids[0])}, ids[0]); err != nil {
			return err
		}
	}
	return nil
}

func TestLedger_MultiProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	const procs = 4

	ctx := context.Background()
	dir := t.TempDir()
	l := New()
	require.NoError(t, l.Configure(Config{Dir: dir, NVar: 2, NObj: 2}))
	require.NoError(t, l.InitializeSchema(ctx))
	defer l.Quit()
	_, err := l.InitializeData(ctx, nil, nil)
	require.NoError(t, err)
	mustFlags(t, l)

	var wg sync.WaitGroup
	outs := make([][]byte, procs)
	errs := make([]error, procs)
	for p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := exec.Command(os.Args[0], "-test.run=^TestLedgerHelperProcess$")
			cmd.Env = append(os.Environ(), helperEnv+"=1", helperDirEnv+"="+dir)
			outs[p], errs[p] = cmd.CombinedOutput()
		}()
	}
	wg.Wait()
	for p := range procs {
		require.NoError(t, errs[p], "helper %d: %s", p, outs[p])
	}

	const total = procs * helperBatches * helperBatchLen

	d, err := l.Load(ctx, []schema.Field{schema.X, schema.BatchID, schema.ConfigID}, WithValidOnly(false))
	require.NoError(t, err)
	require.Equal(t, total, d.Len())
	for i, id := range d.RowIDs {
		assert.Equal(t, int64(i+1), id)
	}

	rows := make(map[int64]int)
	owner := make(map[int64]int64)
	for i, b := range d.BatchID {
		rows[b]++
		if o, ok := owner[b]; ok {
			assert.Equal(t, o, d.ConfigID[i], "batch %d written by two processes", b)
		}
		owner[b] = d.ConfigID[i]
		assert.Equal(t, strconv.FormatInt(d.ConfigID[i], 10), strconv.FormatFloat(d.X[i][0], 'f', -1, 64))
	}
	require.Len(t, rows, procs*helperBatches)
	for b := int64(1); b <= procs*helperBatches; b++ {
		assert.Equal(t, helperBatchLen, rows[b], "batch %d", b)
	}

	// The counters live in shared memory and reflect the helpers' writes.
	assert.Equal(t, Counters{NSample: total, NValidSample: procs * helperBatches}, mustCounters(t, l))
	opt, eval := mustFlags(t, l)
	assert.True(t, opt)
	assert.True(t, eval)

	valid, err := l.Load(ctx, []schema.Field{schema.Y, schema.IsPareto})
	require.NoError(t, err)
	assert.Equal(t, procs*helperBatches, valid.Len())

	// y = (id, -id) never dominates another, so every valid row is on the front.
	for i, p := range valid.IsPareto {
		assert.True(t, p, "row %d", valid.RowIDs[i])
	}
}
