package vehicle

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	maxCollectionRunes = 600
	maxScalarRunes     = 1200
)

// Kind is the JSON type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is one JSON value of the payload. Objects keep their key order.
type Value struct {
	res gjson.Result
}

// Field is a named Value.
type Field struct {
	Name  string
	Value Value
}

// Record is the ordered set of fields returned for a vehicle.
type Record []Field

// ParseValue parses raw JSON. Invalid input yields a null value.
func ParseValue(raw string) Value {
	if !gjson.Valid(raw) {
		return Value{}
	}
	return Value{res: gjson.Parse(raw)}
}

func (v Value) Kind() Kind {
	switch v.res.Type {
	case gjson.True, gjson.False:
		return KindBool
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if v.res.IsArray() {
			return KindList
		}
		return KindMap
	default:
		return KindNull
	}
}

// Items returns the elements of a list.
func (v Value) Items() []Value {
	if v.Kind() != KindList {
		return nil
	}
	arr := v.res.Array()
	items := make([]Value, len(arr))
	for i, r := range arr {
		items[i] = Value{res: r}
	}
	return items
}

// Fields returns the entries of a map in document order.
func (v Value) Fields() []Field {
	if v.Kind() != KindMap {
		return nil
	}
	var fields []Field
	v.res.ForEach(func(key, val gjson.Result) bool {
		fields = append(fields, Field{Name: key.String(), Value: Value{res: val}})
		return true
	})
	return fields
}

// Format renders the value for display: null as N/A, numbers verbatim,
// lists and maps joined and cut at 600 characters, other text cut at 1200
// characters with a trailing ellipsis.
func (v Value) Format() string {
	switch v.Kind() {
	case KindNull:
		return "N/A"
	case KindNumber:
		return v.res.Raw
	case KindList:
		var parts []string
		for _, item := range v.Items() {
			if item.Kind() == KindNull {
				continue
			}
			parts = append(parts, item.inline())
		}
		return truncate(strings.Join(parts, ", "), maxCollectionRunes)
	case KindMap:
		var parts []string
		for _, f := range v.Fields() {
			parts = append(parts, f.Name+":"+f.Value.inline())
		}
		return truncate(strings.Join(parts, "; "), maxCollectionRunes)
	default:
		s := v.inline()
		if len([]rune(s)) <= maxScalarRunes {
			return s
		}
		return truncate(s, maxScalarRunes) + "..."
	}
}

// inline renders a value nested inside a list or map.
func (v Value) inline() string {
	switch v.Kind() {
	case KindNull:
		return "N/A"
	case KindString:
		return v.res.Str
	case KindBool:
		if v.res.Bool() {
			return "true"
		}
		return "false"
	default:
		return v.res.Raw
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
