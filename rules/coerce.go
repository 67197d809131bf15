package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

var relativeDatePattern = regexp.MustCompile(`^\$now(?:\(([^)]*)\))?$`)

// relativeUnits bounds each relative date amount to roughly 10000 years.
var relativeUnits = map[string]struct {
	limit   int64
	perDay  int64
	addDate func(t time.Time, n int) time.Time
}{
	"y": {limit: 10_000, addDate: func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }},
	"M": {limit: 120_000, addDate: func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }},
	"d": {limit: 3_660_000, perDay: 1},
	"h": {limit: 87_840_000, perDay: 24},
	"m": {limit: 5_270_400_000, perDay: 24 * 60},
	"s": {limit: 316_224_000_000, perDay: 24 * 60 * 60},
}

// coerceValue converts one raw wire value to the semantic type of schema.
// The error text is the detail of a ReasonWrongType rejection.
func coerceValue(schema FieldSchema, raw any, now time.Time) (any, error) {
	switch schema.Type {
	case TypeText, TypeEnum, TypeArray:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(raw))
		}
		return s, nil
	case TypeNumber:
		return coerceNumber(raw)
	case TypeBoolean:
		return coerceBoolean(raw)
	case TypeDate:
		return coerceDate(raw, now)
	default:
		return nil, fmt.Errorf("unsupported filter type %q", schema.Type)
	}
}

func coerceNumber(raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		n = parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v.String())
		}
		n = parsed
	default:
		parsed, ok := toFloat64(raw)
		if !ok {
			return 0, fmt.Errorf("expected number, got %s", describe(raw))
		}
		n = parsed
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("expected finite number, got %v", n)
	}
	return n, nil
}

func coerceBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.TrimSpace(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("expected boolean, got %q", v)
	default:
		return false, fmt.Errorf("expected boolean, got %s", describe(raw))
	}
}

func coerceDate(raw any, now time.Time) (time.Time, error) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v.UTC()
	case string:
		parsed, err := parseDate(strings.TrimSpace(v), now)
		if err != nil {
			return time.Time{}, err
		}
		t = parsed
	default:
		return time.Time{}, fmt.Errorf("expected ISO-8601 date, got %s", describe(raw))
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("date %v resolves to year %d, outside 1-9999", raw, y)
	}
	return t, nil
}

// parseDate accepts ISO-8601 dates and date-times, and relative expressions of
// the form $now or $now(d:-7,h:+2) with units y, M, d, h, m and s.
func parseDate(s string, now time.Time) (time.Time, error) {
	if m := relativeDatePattern.FindStringSubmatch(s); m != nil {
		return resolveRelativeDate(m[1], now)
	}
	if t, ok := ParseISODate(s); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected ISO-8601 date, got %q", s)
}

// ParseISODate parses the absolute date layouts accepted in rule values and
// returns the instant in UTC. Dates without an offset are read as UTC.
func ParseISODate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func resolveRelativeDate(args string, now time.Time) (time.Time, error) {
	t := now.UTC()
	if strings.TrimSpace(args) == "" {
		return t, nil
	}
	for _, part := range strings.Split(args, ",") {
		unit, amount, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return time.Time{}, fmt.Errorf("relative date part %q is not unit:amount", part)
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(amount), "+"), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("relative date amount %q is not an integer", amount)
		}
		u, ok := relativeUnits[strings.TrimSpace(unit)]
		if !ok {
			return time.Time{}, fmt.Errorf("relative date unit %q is not one of y, M, d, h, m, s", unit)
		}
		if n > u.limit || n < -u.limit {
			return time.Time{}, fmt.Errorf("relative date amount %s:%d is out of range", strings.TrimSpace(unit), n)
		}
		if u.addDate != nil {
			t = u.addDate(t, int(n))
			continue
		}
		days, rest := n/u.perDay, n%u.perDay
		t = t.AddDate(0, 0, int(days)).Add(time.Duration(rest) * (24 * time.Hour / time.Duration(u.perDay)))
	}
	return t, nil
}

// compareCoerced orders two values produced by coerceValue for the same type.
func compareCoerced(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	default:
		return 0, false
	}
}

// rawValue converts a coerced value back to its wire representation.
func rawValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
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
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
