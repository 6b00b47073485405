package aggregation

import "weatherapi/internal/types"

// Statistic describes one supported summary statistic: the name callers use,
// the prefix of the output field it produces and the group accumulator that
// computes it.
type Statistic struct {
	Name     string
	Prefix   string
	Operator string
}

// The lookup table is closed. Names are matched exactly.
var statistics = map[string]Statistic{
	"average": {Name: "average", Prefix: "avg", Operator: "$avg"},
	"max":     {Name: "max", Prefix: "max", Operator: "$max"},
	"min":     {Name: "min", Prefix: "min", Operator: "$min"},
	"sum":     {Name: "sum", Prefix: "sum", Operator: "$sum"},
}

// LookupStatistic returns the table entry for name.
func LookupStatistic(name string) (Statistic, bool) {
	s, ok := statistics[name]
	return s, ok
}

// ResolveStatistics maps every name to its table entry, preserving order.
// The first unrecognized name fails the whole list.
func ResolveStatistics(names []string) ([]Statistic, error) {
	resolved := make([]Statistic, 0, len(names))
	for _, name := range names {
		s, ok := LookupStatistic(name)
		if !ok {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnknownStat,
				"unknown statistic: "+name,
				nil,
				map[string]any{"stat": name},
			)
		}
		resolved = append(resolved, s)
	}
	return resolved, nil
}
