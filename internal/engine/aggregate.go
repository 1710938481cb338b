package engine

import (
	"fmt"

	"mra/internal/domain"
)

// Aggregate folds vals with fn. Nil values are ignored. Sums of integers stay
// int64; any float promotes the result to float64. Empty input yields 0 for sum
// and count and nil for the other functions.
func Aggregate(fn domain.AggFunc, vals []any) (any, error) {
	switch fn {
	case domain.AggCount:
		var n int64
		for _, v := range vals {
			if v != nil {
				n++
			}
		}
		return n, nil
	case domain.AggCountDistinct:
		seen := map[string]bool{}
		for _, v := range vals {
			if v != nil {
				seen[fmt.Sprintf("%T:%v", v, v)] = true
			}
		}
		return int64(len(seen)), nil
	case domain.AggSum:
		return sum(vals)
	case domain.AggMean:
		total, n, err := floatSum(vals)
		if err != nil || n == 0 {
			return nil, err
		}
		return total / float64(n), nil
	case domain.AggMin, domain.AggMax:
		var best any
		for _, v := range vals {
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := domain.CompareValues(v, best)
			if (fn == domain.AggMin && c < 0) || (fn == domain.AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("unsupported aggregation %q", fn)
	}
}

func sum(vals []any) (any, error) {
	var isum int64
	var fsum float64
	floats := false
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
		case int64:
			isum += x
		case float64:
			fsum += x
			floats = true
		default:
			return nil, fmt.Errorf("cannot sum %T value %v", v, v)
		}
	}
	if floats {
		return fsum + float64(isum), nil
	}
	return isum, nil
}

func floatSum(vals []any) (float64, int, error) {
	var total float64
	n := 0
	for _, v := range vals {
		if v == nil {
			continue
		}
		f, ok := domain.AsFloat(v)
		if !ok {
			return 0, 0, fmt.Errorf("cannot average %T value %v", v, v)
		}
		total += f
		n++
	}
	return total, n, nil
}
