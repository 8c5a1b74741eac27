package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/rowstore"
)

func TestNew(t *testing.T) {
	s, err := New(2, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, s.NVar())
	assert.Equal(t, 3, s.NObj())
	assert.Equal(t, []string{
		"x1", "x2",
		"f1", "f2", "f3",
		"f1_expected", "f2_expected", "f3_expected",
		"f1_uncertainty", "f2_uncertainty", "f3_uncertainty",
		"is_pareto", "config_id", "batch_id",
	}, Names(s.Columns()))

	for _, c := range s.Columns()[:11] {
		assert.Equal(t, rowstore.Real, c.Type, c.Name)
	}
	assert.True(t, s.Matches(s.Columns()))
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0, 1)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = New(1, -1)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestMap(t *testing.T) {
	s, err := New(2, 2)
	require.NoError(t, err)

	tests := []struct {
		field Field
		names []string
		typ   rowstore.Type
	}{
		{X, []string{"x1", "x2"}, rowstore.Real},
		{Y, []string{"f1", "f2"}, rowstore.Real},
		{YExpected, []string{"f1_expected", "f2_expected"}, rowstore.Real},
		{YUncertainty, []string{"f1_uncertainty", "f2_uncertainty"}, rowstore.Real},
		{IsPareto, []string{"is_pareto"}, rowstore.Boolean},
		{ConfigID, []string{"config_id"}, rowstore.Integer},
		{BatchID, []string{"batch_id"}, rowstore.Integer},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			cols, err := s.Map(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.names, Names(cols))

			typ, err := s.Type(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)

			w, err := s.Width(tt.field)
			require.NoError(t, err)
			assert.Equal(t, len(tt.names), w)
		})
	}
}

func TestMapAllAndFlat(t *testing.T) {
	s, err := New(1, 2)
	require.NoError(t, err)

	all, err := s.MapAll([]Field{Y, BatchID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"f1", "f2"}, Names(all[0]))
	assert.Equal(t, []string{"batch_id"}, Names(all[1]))

	flat, err := s.MapFlat([]Field{X, Y, IsPareto})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "f1", "f2", "is_pareto"}, Names(flat))
}

func TestUnknownField(t *testing.T) {
	s, err := New(1, 1)
	require.NoError(t, err)

	_, err = s.Map("Z")
	assert.ErrorIs(t, err, ErrUnknownField)

	var ufe *UnknownFieldError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, "Z", ufe.Field)

	_, err = s.MapFlat([]Field{X, "bogus"})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = s.Width("bogus")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("y-expected")
	require.NoError(t, err)
	assert.Equal(t, YExpected, f)

	f, err = ParseField(" x ")
	require.NoError(t, err)
	assert.Equal(t, X, f)

	fs, err := ParseFields([]string{"Y", "IS_PARETO"})
	require.NoError(t, err)
	assert.Equal(t, []Field{Y, IsPareto}, fs)

	_, err = ParseField("objective")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestColumnsIsACopy(t *testing.T) {
	s, err := New(1, 1)
	require.NoError(t, err)

	cols := s.Columns()
	cols[0].Name = "mutated"
	assert.Equal(t, "x1", s.Columns()[0].Name)
}
