package model

import "fmt"

// Row is one record of named column values. Numeric columns take Go
// numbers; categorical columns take strings.
type Row map[string]any

type Frame []Row

// Predictor is a batch regression model: one output per input row.
type Predictor interface {
	Predict(frame Frame) ([]float64, error)
}

// SchemaError reports a row that does not match the model's input schema.
type SchemaError struct {
	Row    int
	Column string
	Reason string
}

func (err *SchemaError) Error() string {
	return fmt.Sprintf(
		"row %d: column `%s`: %s",
		err.Row,
		err.Column,
		err.Reason,
	)
}

func (m *Model) Predict(frame Frame) ([]float64, error) {
	out := make([]float64, len(frame))
	x := make([]float64, len(m.encoded))
	for i, row := range frame {
		if err := m.encode(i, row, x); err != nil {
			return nil, fmt.Errorf("predicting with model `%s`: %w", m.Name, err)
		}
		out[i] = m.eval(x)
	}
	return out, nil
}

func (m *Model) encode(rowIndex int, row Row, x []float64) error {
	for i := range x {
		x[i] = 0
	}
	for _, f := range m.Features {
		v, ok := row[f.Name]
		if !ok || v == nil {
			return &SchemaError{Row: rowIndex, Column: f.Name, Reason: "missing"}
		}

		switch f.Type {
		case FeatureNumeric:
			n, ok := number(v)
			if !ok {
				return &SchemaError{
					Row:    rowIndex,
					Column: f.Name,
					Reason: fmt.Sprintf("wanted a number; found `%T`", v),
				}
			}
			x[m.index[f.Name]] = n
		case FeatureCategorical:
			s, ok := v.(string)
			if !ok {
				return &SchemaError{
					Row:    rowIndex,
					Column: f.Name,
					Reason: fmt.Sprintf("wanted a string; found `%T`", v),
				}
			}
			i, ok := m.index[encodedName(f.Name, s)]
			if !ok {
				return &SchemaError{
					Row:    rowIndex,
					Column: f.Name,
					Reason: fmt.Sprintf("unknown category `%s`", s),
				}
			}
			x[i] = 1
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
