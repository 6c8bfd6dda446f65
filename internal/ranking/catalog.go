package ranking

// Factor describes a rankable indicator column and its default direction.
type Factor struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Weight      float64 `json:"weight"`
}

// Factor categories.
const (
	CategoryPrice     = "price"
	CategoryBond      = "convertible"
	CategoryActivity  = "activity"
	CategorySize      = "size"
	CategoryTime      = "time"
	CategoryValue     = "value"
	CategoryUnderlier = "underlying"
)

// DefaultCatalog is the convertible bond factor set.
var DefaultCatalog = []Factor{
	{"close", "Close price", "Bond close price", CategoryPrice, -1},
	{"open", "Open price", "Bond open price", CategoryPrice, -1},
	{"high", "High price", "Bond intraday high", CategoryPrice, -1},
	{"low", "Low price", "Bond intraday low", CategoryPrice, -1},
	{"pct_chg", "Daily change", "Daily percentage change", CategoryPrice, 1},

	{"conv_prem", "Conversion premium", "Premium of price over conversion value", CategoryBond, -1},
	{"theory_conv_prem", "Theoretical premium", "Theoretical conversion premium", CategoryBond, -1},
	{"mod_conv_prem", "Adjusted premium", "Adjusted conversion premium", CategoryBond, -1},
	{"bond_prem", "Bond premium", "Premium of price over pure bond value", CategoryBond, -1},
	{"ytm", "Yield to maturity", "Bond yield to maturity", CategoryBond, 1},
	{"dblow", "Double low", "Close price plus conversion premium", CategoryBond, -1},

	{"vol", "Volume", "Daily traded volume", CategoryActivity, 1},
	{"amount", "Turnover amount", "Daily traded amount", CategoryActivity, 1},
	{"turnover", "Turnover rate", "Daily turnover rate", CategoryActivity, 1},

	{"remain_size", "Remaining size", "Outstanding issue size", CategorySize, 1},
	{"remain_cap", "Remaining cap", "Outstanding market value", CategorySize, 1},
	{"issue_size", "Issue size", "Original issue size", CategorySize, 1},
	{"cap_mv_rate", "Cap ratio", "Bond value as share of underlying cap", CategorySize, 1},

	{"left_years", "Years to maturity", "Remaining years to maturity", CategoryTime, 1},
	{"list_days", "Days listed", "Days since listing", CategoryTime, 1},

	{"pure_value", "Pure bond value", "Value as a straight bond", CategoryValue, 1},
	{"theory_value", "Theoretical value", "Model value of the bond", CategoryValue, 1},
	{"option_value", "Option value", "Value of the embedded option", CategoryValue, 1},
	{"theory_bias", "Theoretical bias", "Deviation of price from model value", CategoryValue, -1},

	{"pe_ttm", "P/E TTM", "Underlying trailing price to earnings", CategoryUnderlier, -1},
	{"pb", "P/B", "Underlying price to book", CategoryUnderlier, -1},
	{"ps_ttm", "P/S TTM", "Underlying trailing price to sales", CategoryUnderlier, -1},
	{"total_mv", "Total cap", "Underlying total market value", CategoryUnderlier, 1},
	{"circ_mv", "Float cap", "Underlying free-float market value", CategoryUnderlier, 1},
	{"volatility_stk", "Underlying volatility", "Annualized volatility of the underlying", CategoryUnderlier, -1},
	{"close_stk", "Underlying close", "Underlying close price", CategoryUnderlier, 1},
	{"pct_chg_stk", "Underlying change", "Underlying daily percentage change", CategoryUnderlier, 1},
}

// BasicFilters are the liquidity and maturity screens applied to single-factor runs.
func BasicFilters() map[string]Filter {
	return map[string]Filter{
		"left_years": {Operator: OpGreater, Threshold: 0.5},
		"list_days":  {Operator: OpGreater, Threshold: 30},
	}
}

// Lookup finds a factor by id.
func Lookup(catalog []Factor, id string) (Factor, bool) {
	for _, f := range catalog {
		if f.ID == id {
			return f, true
		}
	}
	return Factor{}, false
}

// Available returns the catalog entries whose column exists.
func Available(catalog []Factor, hasColumn func(string) bool) []Factor {
	out := make([]Factor, 0, len(catalog))
	for _, f := range catalog {
		if hasColumn(f.ID) {
			out = append(out, f)
		}
	}
	return out
}
