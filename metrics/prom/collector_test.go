package prom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb"
	"github.com/hupe1980/paretodb/rowstore"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInsert(3, time.Millisecond, nil)
	c.RecordInsert(2, time.Millisecond, errors.New("disk full"))
	c.RecordUpdate(4, 1, time.Millisecond, nil)
	c.RecordLoad(10, time.Millisecond, nil)
	c.RecordLockWait(time.Millisecond)
	c.RecordCorrection("stats", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.OpsTotal.WithLabelValues("insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OpsTotal.WithLabelValues("insert", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RowsTotal.WithLabelValues("insert")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.RowsTotal.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NewlyValidTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CorrectionsTotal.WithLabelValues("stats", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.LockWaitSeconds))
}

func TestCollector_WithLedger(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	l := paretodb.New(
		paretodb.WithRowStore(rowstore.KindMemory),
		paretodb.WithMetricsCollector(NewCollector(reg)),
	)
	defer l.Quit()
	require.NoError(t, l.Configure(paretodb.Config{NVar: 1, NObj: 2}))
	require.NoError(t, l.InitializeSchema(ctx))
	RegisterCounters(reg, l)

	_, err := l.InitializeData(ctx, [][]float64{{0}, {1}}, [][]float64{{1, 2}, {2, 1}})
	require.NoError(t, err)
	_, err = l.Insert(ctx, [][]float64{{2}}, nil, nil, 1)
	require.NoError(t, err)
	require.NoError(t, l.Update(ctx, []float64{0, 0}, 3))

	expected := `
# HELP paretodb_samples Rows in the ledger (n_sample)
# TYPE paretodb_samples gauge
paretodb_samples 3
# HELP paretodb_valid_samples Rows with complete objectives (n_valid_sample)
# TYPE paretodb_valid_samples gauge
paretodb_valid_samples 3
# HELP paretodb_rows_newly_valid_total Rows that became valid through an update
# TYPE paretodb_rows_newly_valid_total counter
paretodb_rows_newly_valid_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"paretodb_samples", "paretodb_valid_samples", "paretodb_rows_newly_valid_total"))
}

func TestRegisterCounters_Error(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := paretodb.New()
	require.NoError(t, l.Quit())
	RegisterCounters(reg, l)

	expected := `
# HELP paretodb_initial_samples Valid seeded rows (n_init_sample)
# TYPE paretodb_initial_samples gauge
paretodb_initial_samples -1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "paretodb_initial_samples"))
}
