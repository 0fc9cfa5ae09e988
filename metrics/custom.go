package metrics

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/yalp/jsonpath"

	"github.com/zapmyco/home-agent-eval/model"
)

// Custom metric types.
const (
	CustomFilterCount  = "filter_count"
	CustomAverageField = "average_field"
)

type customEvaluator func(rows []any, cm model.CustomMetric) map[string]any

var customRegistry = map[string]customEvaluator{
	CustomFilterCount:  evalFilterCount,
	CustomAverageField: evalAverageField,
}

// EvaluateCustom computes every declared custom metric over the JSON
// view of the records, keyed by metric name.
func EvaluateCustom(records []model.TestRecord, customs []model.CustomMetric) (map[string]any, error) {
	if len(customs) == 0 {
		return nil, nil
	}
	rows, err := recordRows(records)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(customs))
	for _, cm := range customs {
		eval, ok := customRegistry[cm.Type]
		if !ok {
			return nil, model.ConfigErrorf("custom metric %q has unknown type %q", cm.Name, cm.Type)
		}
		out[cm.Name] = eval(rows, cm)
	}
	return out, nil
}

// recordRows produces the generic JSON form of each record so field
// paths resolve the same way they would against the emitted report.
func recordRows(records []model.TestRecord) ([]any, error) {
	rows := make([]any, len(records))
	for i, rec := range records {
		data, err := sonic.Marshal(rec)
		if err != nil {
			return nil, model.InternalErrorf("encoding record %q: %v", rec.TestID, err)
		}
		var row any
		if err := sonic.Unmarshal(data, &row); err != nil {
			return nil, model.InternalErrorf("decoding record %q: %v", rec.TestID, err)
		}
		rows[i] = row
	}
	return rows, nil
}

func lookupField(row any, field string) (any, bool) {
	path := field
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	res, err := jsonpath.Read(row, path)
	if err != nil {
		return nil, false
	}
	return res, true
}

// evalFilterCount counts records whose field equals the filter value and
// reports the count alongside its share of the whole run.
func evalFilterCount(rows []any, cm model.CustomMetric) map[string]any {
	count := 0
	for _, row := range rows {
		val, ok := lookupField(row, cm.FilterField)
		if !ok {
			continue
		}
		if valuesEqual(val, cm.FilterValue) {
			count++
		}
	}
	return map[string]any{
		"count":      count,
		"total":      len(rows),
		"percentage": rate(count, len(rows)),
	}
}

// evalAverageField averages the numeric values of a field across the
// records that carry it.
func evalAverageField(rows []any, cm model.CustomMetric) map[string]any {
	var values []float64
	for _, row := range rows {
		val, ok := lookupField(row, cm.Field)
		if !ok {
			continue
		}
		if n, ok := asNumber(val); ok {
			values = append(values, n)
		}
	}
	if len(values) == 0 {
		return map[string]any{"count": 0, "average": 0.0, "min": 0.0, "max": 0.0}
	}
	sum, minV, maxV := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return map[string]any{
		"count":   len(values),
		"average": round3(sum / float64(len(values))),
		"min":     round3(minV),
		"max":     round3(maxV),
	}
}

func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
	}
	return a == b
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
