// Package ranking turns a dataset and a declarative factor configuration into
// per-day top-N candidate selections scored by weighted competition ranks.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/models"
)

// Criteria is the ranking configuration. A negative weight ranks small values
// first, a positive weight ranks large values first.
type Criteria struct {
	Start      time.Time
	End        time.Time
	Indicators []string
	Weights    []float64
	Filters    map[string]Filter
	TopN       int
}

// Candidate is one selected instrument on one day.
type Candidate struct {
	Date  time.Time `json:"date"`
	Code  string    `json:"code"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
	Rank  int       `json:"rank"`
}

// Selections holds the ranked candidates for every day that had any.
type Selections struct {
	days  []time.Time
	byDay map[int64][]Candidate
}

// Days returns the days with at least one candidate, ascending.
func (s *Selections) Days() []time.Time {
	return s.days
}

// For returns the candidates for day in rank order, or nil.
func (s *Selections) For(day time.Time) []Candidate {
	return s.byDay[day.UnixNano()]
}

// Len returns the total number of candidates across all days.
func (s *Selections) Len() int {
	n := 0
	for _, c := range s.byDay {
		n += len(c)
	}
	return n
}

// Validate checks the criteria against the frame. Operators are checked
// first, in sorted field order, then column presence.
func (c Criteria) Validate(frame *dataset.Frame) error {
	if len(c.Indicators) == 0 {
		return fmt.Errorf("%w: at least one indicator is required", models.ErrInvalidConfig)
	}
	if len(c.Indicators) != len(c.Weights) {
		return fmt.Errorf("%w: %d indicators but %d weights", models.ErrInvalidConfig, len(c.Indicators), len(c.Weights))
	}
	for i, w := range c.Weights {
		if w == 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight for %s must be non-zero", models.ErrInvalidConfig, c.Indicators[i])
		}
	}
	if c.TopN <= 0 {
		return fmt.Errorf("%w: top_n must be positive", models.ErrInvalidConfig)
	}

	fields := filterFields(c.Filters)
	for _, field := range fields {
		if op := c.Filters[field].Operator; !op.Valid() {
			return &models.InvalidFilterOperatorError{Field: field, Operator: string(op)}
		}
	}
	if frame == nil {
		return nil
	}
	for _, indicator := range c.Indicators {
		if !frame.HasColumn(indicator) {
			return &models.MissingColumnError{Column: indicator}
		}
	}
	for _, field := range fields {
		if !frame.HasColumn(field) {
			return &models.MissingColumnError{Column: field}
		}
	}
	return nil
}

// Rank runs the whole ranking pass in bulk.
func Rank(frame *dataset.Frame, c Criteria) (*Selections, error) {
	if frame == nil {
		return nil, fmt.Errorf("dataset frame is required")
	}
	if err := c.Validate(frame); err != nil {
		return nil, err
	}

	filtered := applyFilters(frame.Between(c.Start, c.End), c.Filters)

	groups := make(map[int64][]dataset.Row)
	var days []time.Time
	for _, row := range filtered {
		key := row.Date.UnixNano()
		if _, ok := groups[key]; !ok {
			days = append(days, row.Date)
		}
		groups[key] = append(groups[key], row)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := &Selections{byDay: make(map[int64][]Candidate, len(days))}
	for _, day := range days {
		candidates := rankDay(groups[day.UnixNano()], c)
		if len(candidates) == 0 {
			continue
		}
		out.days = append(out.days, day)
		out.byDay[day.UnixNano()] = candidates
	}
	return out, nil
}

// applyFilters keeps rows satisfying every filter. Null fields never match.
func applyFilters(rows []dataset.Row, filters map[string]Filter) []dataset.Row {
	if len(filters) == 0 {
		return rows
	}
	fields := filterFields(filters)
	out := make([]dataset.Row, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, field := range fields {
			v, ok := row.Value(field)
			if !ok || !filters[field].Match(v) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

// rankDay scores one day's filtered rows and returns the top N.
func rankDay(rows []dataset.Row, c Criteria) []Candidate {
	// rows with a null indicator cannot be scored
	values := make([][]float64, 0, len(rows))
	scored := make([]dataset.Row, 0, len(rows))
	for _, row := range rows {
		vals := make([]float64, len(c.Indicators))
		complete := true
		for k, indicator := range c.Indicators {
			v, ok := row.Value(indicator)
			if !ok {
				complete = false
				break
			}
			vals[k] = v
		}
		if complete {
			values = append(values, vals)
			scored = append(scored, row)
		}
	}
	if len(scored) == 0 {
		return nil
	}

	scores := make([]float64, len(scored))
	column := make([]float64, len(scored))
	for k, w := range c.Weights {
		for i := range scored {
			column[i] = values[i][k]
		}
		ranks := CompetitionRank(column, w > 0)
		for i, r := range ranks {
			scores[i] += math.Abs(w) * float64(r)
		}
	}

	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	n := c.TopN
	if n > len(order) {
		n = len(order)
	}
	out := make([]Candidate, n)
	for pos, i := range order[:n] {
		out[pos] = Candidate{
			Date:  scored[i].Date,
			Code:  scored[i].Code,
			Name:  scored[i].Name,
			Score: scores[i],
			Rank:  pos + 1,
		}
	}
	return out
}

// CompetitionRank assigns 1-based "min" ranks: equal values share the lowest
// rank of their group and the next distinct value skips ahead. With
// descending set, the largest value ranks first.
func CompetitionRank(values []float64, descending bool) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if descending {
			return values[idx[a]] > values[idx[b]]
		}
		return values[idx[a]] < values[idx[b]]
	})

	ranks := make([]int, len(values))
	for pos, i := range idx {
		if pos > 0 && values[i] == values[idx[pos-1]] {
			ranks[i] = ranks[idx[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

func filterFields(filters map[string]Filter) []string {
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
