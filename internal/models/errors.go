package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrMissingColumn         = errors.New("missing required column")
	ErrInvalidDateFormat     = errors.New("invalid date format")
	ErrDataNotFound          = errors.New("no trading data available")
	ErrInvalidFilterOperator = errors.New("invalid filter operator")
	ErrInvalidConfig         = errors.New("invalid backtest configuration")
	ErrNoBacktestData        = errors.New("backtest produced no data")
	ErrRunNotFound           = errors.New("backtest run not found")
	ErrNotFound              = errors.New("record not found")
)

// MissingColumnError reports a column the dataset must carry but does not.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

// Is lets errors.Is match against ErrMissingColumn.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// InvalidFilterOperatorError reports an operator outside > >= < <= == !=.
type InvalidFilterOperatorError struct {
	Field    string
	Operator string
}

func (e *InvalidFilterOperatorError) Error() string {
	return fmt.Sprintf("invalid filter operator %q for field %q", e.Operator, e.Field)
}

// Is lets errors.Is match against ErrInvalidFilterOperator.
func (e *InvalidFilterOperatorError) Is(target error) bool {
	return target == ErrInvalidFilterOperator
}
