package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/paretodb/rowstore"
)

// Field is a semantic field name.
type Field string

const (
	X            Field = "X"
	Y            Field = "Y"
	YExpected    Field = "Y_expected"
	YUncertainty Field = "Y_uncertainty"
	IsPareto     Field = "is_pareto"
	ConfigID     Field = "config_id"
	BatchID      Field = "batch_id"
)

// Fields lists every semantic field in table order.
var Fields = []Field{X, Y, YExpected, YUncertainty, IsPareto, ConfigID, BatchID}

var (
	// ErrUnknownField is returned for a semantic name outside Fields.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidDimension is returned by New for non-positive dimensions.
	ErrInvalidDimension = errors.New("invalid dimension")
)

// UnknownFieldError names the field that could not be mapped.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

func (e *UnknownFieldError) Unwrap() error {
	return ErrUnknownField
}

// Schema is the column layout for one problem.
type Schema struct {
	nVar, nObj int
	columns    []rowstore.Column
	fields     map[Field][]rowstore.Column
}

// New derives the schema for nVar variables and nObj objectives.
func New(nVar, nObj int) (*Schema, error) {
	if nVar <= 0 {
		return nil, fmt.Errorf("%w: n_var must be positive, got %d", ErrInvalidDimension, nVar)
	}
	if nObj <= 0 {
		return nil, fmt.Errorf("%w: n_obj must be positive, got %d", ErrInvalidDimension, nObj)
	}

	s := &Schema{
		nVar:   nVar,
		nObj:   nObj,
		fields: make(map[Field][]rowstore.Column, len(Fields)),
	}

	s.fields[X] = series("x", "", nVar, rowstore.Real)
	s.fields[Y] = series("f", "", nObj, rowstore.Real)
	s.fields[YExpected] = series("f", "_expected", nObj, rowstore.Real)
	s.fields[YUncertainty] = series("f", "_uncertainty", nObj, rowstore.Real)
	s.fields[IsPareto] = []rowstore.Column{{Name: string(IsPareto), Type: rowstore.Boolean}}
	s.fields[ConfigID] = []rowstore.Column{{Name: string(ConfigID), Type: rowstore.Integer}}
	s.fields[BatchID] = []rowstore.Column{{Name: string(BatchID), Type: rowstore.Integer}}

	for _, f := range Fields {
		s.columns = append(s.columns, s.fields[f]...)
	}
	return s, nil
}

func series(prefix, suffix string, n int, t rowstore.Type) []rowstore.Column {
	cols := make([]rowstore.Column, n)
	for i := range cols {
		cols[i] = rowstore.Column{Name: prefix + strconv.Itoa(i+1) + suffix, Type: t}
	}
	return cols
}

// NVar returns the number of design variables.
func (s *Schema) NVar() int { return s.nVar }

// NObj returns the number of objectives.
func (s *Schema) NObj() int { return s.nObj }

// Columns returns the physical table definition.
func (s *Schema) Columns() []rowstore.Column {
	return clone(s.columns)
}

// Map returns the physical columns of one field.
func (s *Schema) Map(f Field) ([]rowstore.Column, error) {
	cols, ok := s.fields[f]
	if !ok {
		return nil, &UnknownFieldError{Field: string(f)}
	}
	return clone(cols), nil
}

// MapAll maps each field to its columns, preserving order.
func (s *Schema) MapAll(fields []Field) ([][]rowstore.Column, error) {
	out := make([][]rowstore.Column, len(fields))
	for i, f := range fields {
		cols, err := s.Map(f)
		if err != nil {
			return nil, err
		}
		out[i] = cols
	}
	return out, nil
}

// MapFlat maps fields to one flattened column list.
func (s *Schema) MapFlat(fields []Field) ([]rowstore.Column, error) {
	var out []rowstore.Column
	for _, f := range fields {
		cols, err := s.Map(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

// Names returns the physical column names of the given columns.
func Names(cols []rowstore.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Type returns the scalar type of a field.
func (s *Schema) Type(f Field) (rowstore.Type, error) {
	cols, ok := s.fields[f]
	if !ok {
		return 0, &UnknownFieldError{Field: string(f)}
	}
	return cols[0].Type, nil
}

// Width returns the number of physical columns of a field.
func (s *Schema) Width(f Field) (int, error) {
	cols, ok := s.fields[f]
	if !ok {
		return 0, &UnknownFieldError{Field: string(f)}
	}
	return len(cols), nil
}

// Matches reports whether cols is exactly this schema's table definition.
func (s *Schema) Matches(cols []rowstore.Column) bool {
	if len(cols) != len(s.columns) {
		return false
	}
	for i := range cols {
		if cols[i] != s.columns[i] {
			return false
		}
	}
	return true
}

// ParseField parses a user supplied field name. Matching ignores case and
// accepts '-' for '_'.
func ParseField(name string) (Field, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
	for _, f := range Fields {
		if strings.EqualFold(norm, string(f)) {
			return f, nil
		}
	}
	return "", &UnknownFieldError{Field: name}
}

// ParseFields parses a list of field names.
func ParseFields(names []string) ([]Field, error) {
	out := make([]Field, len(names))
	for i, n := range names {
		f, err := ParseField(n)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func clone(cols []rowstore.Column) []rowstore.Column {
	return append([]rowstore.Column(nil), cols...)
}
