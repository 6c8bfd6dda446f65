package ranking

import (
	"encoding/json"
	"fmt"

	"github.com/yourusername/factor-backtest/internal/models"
)

// Operator is a filter comparison symbol.
type Operator string

// Supported operators.
const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Operators lists every supported operator.
var Operators = []Operator{OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual}

// Valid reports whether op is supported.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Filter keeps rows whose field compares true against Threshold.
type Filter struct {
	Operator  Operator
	Threshold float64
}

// Match applies the comparison. Unsupported operators never match.
func (f Filter) Match(value float64) bool {
	switch f.Operator {
	case OpGreater:
		return value > f.Threshold
	case OpGreaterEqual:
		return value >= f.Threshold
	case OpLess:
		return value < f.Threshold
	case OpLessEqual:
		return value <= f.Threshold
	case OpEqual:
		return value == f.Threshold
	case OpNotEqual:
		return value != f.Threshold
	}
	return false
}

// String renders the filter as "op threshold".
func (f Filter) String() string {
	return fmt.Sprintf("%s %g", f.Operator, f.Threshold)
}

// MarshalJSON encodes the filter as [op, threshold].
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{string(f.Operator), f.Threshold})
}

// UnmarshalJSON decodes [op, threshold]. Operator validity is checked later
// so that the error can name the field.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter must be [operator, threshold]: %w", err)
	}
	parsed, err := ParseFilter(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFilter converts a decoded [op, threshold] pair from JSON or YAML.
func ParseFilter(raw []interface{}) (Filter, error) {
	if len(raw) != 2 {
		return Filter{}, fmt.Errorf("%w: filter must be [operator, threshold], got %d elements", models.ErrInvalidConfig, len(raw))
	}
	op, ok := raw[0].(string)
	if !ok {
		return Filter{}, fmt.Errorf("%w: filter operator must be a string, got %T", models.ErrInvalidConfig, raw[0])
	}
	threshold, err := toFloat(raw[1])
	if err != nil {
		return Filter{}, err
	}
	return Filter{Operator: Operator(op), Threshold: threshold}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%w: filter threshold must be numeric, got %T", models.ErrInvalidConfig, v)
	}
}
