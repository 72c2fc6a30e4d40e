package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Predicate is an index condition on a top-level document field.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Predicate  { return Predicate{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v any) Predicate  { return Predicate{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Predicate { return Predicate{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Predicate  { return Predicate{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Predicate { return Predicate{Field: field, Op: OpLte, Value: v} }

func In(field string, values ...any) Predicate {
	return Predicate{Field: field, Op: OpIn, Value: values}
}

// Between is the half-open range [from, to).
func Between(field string, from, to any) []Predicate {
	return []Predicate{Gte(field, from), Lt(field, to)}
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// Match reports whether body satisfies every predicate.
func Match(body []byte, preds []Predicate) (bool, error) {
	if len(preds) == 0 {
		return true, nil
	}
	fields, err := decodeFields(body)
	if err != nil {
		return false, err
	}
	for _, p := range preds {
		raw, ok := fields[p.Field]
		if !ok {
			return false, nil
		}
		if !matchOne(raw, p) {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(raw any, p Predicate) bool {
	if p.Op == OpIn {
		values, ok := p.Value.([]any)
		if !ok {
			return false
		}
		for _, v := range values {
			if c, ok := Compare(raw, v); ok && c == 0 {
				return true
			}
		}
		return false
	}
	c, ok := Compare(raw, p.Value)
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// Extract returns the normalized value of a top-level field.
func Extract(body []byte, field string) (any, bool) {
	fields, err := decodeFields(body)
	if err != nil {
		return nil, false
	}
	v, ok := fields[field]
	if !ok {
		return nil, false
	}
	return normalize(v), true
}

// Compare orders two values after normalization. Numbers compare numerically,
// RFC 3339 strings as instants, other strings lexically. ok is false when the
// values are not comparable.
func Compare(a, b any) (int, bool) {
	na, nb := normalize(a), normalize(b)
	switch x := na.(type) {
	case nil:
		return 0, nb == nil
	case float64:
		y, ok := nb.(float64)
		if !ok {
			if y, ok = numericString(nb); !ok {
				return 0, false
			}
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := nb.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case string:
		if y, ok := nb.(float64); ok {
			f, ok := numericString(x)
			if !ok {
				return 0, false
			}
			return sign(f - y), true
		}
		y, ok := nb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := nb.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UTC()
		}
		return x
	case bool:
		return x
	case decimal.Decimal:
		return x.InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return x.InexactFloat64()
	case fmt.Stringer:
		return normalize(x.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return normalize(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// numericString reads a decimal encoded as a JSON string, which is how
// decimal.Decimal fields are stored.
func numericString(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	}
	return 0
}

func decodeFields(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ApplyPatch shallow-merges patch into a JSON object.
func ApplyPatch(body []byte, patch map[string]any) ([]byte, error) {
	fields, err := decodeFields(body)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// SortDocuments orders docs by field, falling back to id for ties and for
// documents missing the field.
func SortDocuments(docs []Document, field string, desc bool) {
	keys := make([]any, len(docs))
	for i, d := range docs {
		keys[i], _ = Extract(d.Body, field)
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c, ok := Compare(keys[idx[a]], keys[idx[b]])
		if !ok || c == 0 {
			return docs[idx[a]].Id < docs[idx[b]].Id
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	sorted := make([]Document, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func sortStrings(s []string) { sort.Strings(s) }
