// Package conditions evaluates definition condition lists against an event context.
package conditions

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/custodian/pkg/models"
)

// Evaluate folds the conditions left to right. The accumulator starts true and
// each condition is combined using the CombineWith of the condition before it;
// the first one is combined with AND. An empty list applies unconditionally.
func Evaluate(conditions []models.Condition, context map[string]any) bool {
	result := true
	combine := models.CombineAnd

	for _, condition := range conditions {
		value, found := Lookup(context, condition.Field)
		current := evaluateOne(condition.Operator, value, found, condition.Value)

		if combine == models.CombineOr {
			result = result || current
		} else {
			result = result && current
		}

		combine = condition.CombineWith
	}

	return result
}

// Compare applies a single operator between a value and an expected value.
func Compare(operator models.Operator, value, expected any) bool {
	return evaluateOne(operator, value, true, expected)
}

func evaluateOne(operator models.Operator, value any, found bool, expected any) bool {
	switch operator {
	case models.OperatorEquals:
		return found && strictEqual(value, expected)
	case models.OperatorNotEquals:
		return !found || !strictEqual(value, expected)
	case models.OperatorGreaterThan:
		left, right, ok := numericPair(value, found, expected)

		return ok && left > right
	case models.OperatorLessThan:
		left, right, ok := numericPair(value, found, expected)

		return ok && left < right
	case models.OperatorIn:
		return found && contains(expected, value)
	case models.OperatorContains:
		if !found || value == nil || expected == nil {
			return false
		}

		return strings.Contains(
			strings.ToLower(stringify(value)),
			strings.ToLower(stringify(expected)),
		)
	default:
		return false
	}
}

// Lookup resolves a dotted path into nested maps and lists. Missing segments
// report found=false instead of failing.
func Lookup(context map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = context

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	an, aIsNumber := toNumber(a)
	bn, bIsNumber := toNumber(b)

	if aIsNumber || bIsNumber {
		return aIsNumber && bIsNumber && an == bn
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)

		return ok && av == bv
	case bool:
		bv, ok := b.(bool)

		return ok && av == bv
	default:
		return false
	}
}

func contains(list, value any) bool {
	rv := reflect.ValueOf(list)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}

	for i := range rv.Len() {
		if strictEqual(rv.Index(i).Interface(), value) {
			return true
		}
	}

	return false
}

func numericPair(value any, found bool, expected any) (float64, float64, bool) {
	if !found {
		return 0, 0, false
	}

	left, ok := coerceNumber(value)
	if !ok {
		return 0, 0, false
	}

	right, ok := coerceNumber(expected)
	if !ok {
		return 0, 0, false
	}

	return left, right, true
}

// Number coerces numbers and numeric strings to float64.
func Number(v any) (float64, bool) {
	return coerceNumber(v)
}

// coerceNumber accepts numbers and numeric strings.
func coerceNumber(v any) (float64, bool) {
	if n, ok := toNumber(v); ok {
		return n, !math.IsNaN(n)
	}

	s, ok := v.(string)
	if !ok {
		return 0, false
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}

	return n, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	if n, ok := toNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}

	return fmt.Sprint(v)
}
