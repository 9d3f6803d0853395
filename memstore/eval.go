package memstore

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type doc = map[string]any

// normalize converts driver document types into plain maps and slices
func normalize(v any) any {
	switch val := v.(type) {
	case bson.D:
		m := make(doc, len(val))
		for _, e := range val {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(doc, len(val))
		for k, vv := range val {
			m[k] = normalize(vv)
		}
		return m
	case map[string]any:
		m := make(doc, len(val))
		for k, vv := range val {
			m[k] = normalize(vv)
		}
		return m
	case bson.A:
		a := make([]any, len(val))
		for i, vv := range val {
			a[i] = normalize(vv)
		}
		return a
	case []any:
		a := make([]any, len(val))
		for i, vv := range val {
			a[i] = normalize(vv)
		}
		return a
	case int:
		return int64(val)
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case doc:
		m := make(doc, len(val))
		for k, vv := range val {
			m[k] = deepCopy(vv)
		}
		return m
	case []any:
		a := make([]any, len(val))
		for i, vv := range val {
			a[i] = deepCopy(vv)
		}
		return a
	default:
		return v
	}
}

// lookup resolves a dotted path. Arrays met on the way are traversed and
// their elements' values collected, as the server does.
func lookup(v any, path string) ([]any, bool) {
	if path == "" {
		return []any{v}, true
	}
	head, rest, _ := strings.Cut(path, ".")

	switch val := v.(type) {
	case doc:
		next, ok := val[head]
		if !ok {
			return nil, false
		}
		return lookup(next, rest)
	case []any:
		var out []any
		found := false
		for _, el := range val {
			if vals, ok := lookup(el, path); ok {
				out = append(out, vals...)
				found = true
			}
		}
		return out, found
	default:
		return nil, false
	}
}

// candidates expands array values so equality can match an element
func candidates(vals []any) []any {
	var out []any
	for _, v := range vals {
		out = append(out, v)
		if a, ok := v.([]any); ok {
			out = append(out, a...)
		}
	}
	return out
}

func setPath(d doc, path string, v any) {
	head, rest, more := strings.Cut(path, ".")
	if !more {
		d[head] = v
		return
	}
	child, ok := d[head].(doc)
	if !ok {
		child = doc{}
		d[head] = child
	}
	setPath(child, rest, v)
}

func matches(d doc, filter any) (bool, error) {
	f, ok := normalize(filter).(doc)
	if !ok {
		return false, fmt.Errorf("memstore: filter must be a document, got %T", filter)
	}

	for key, cond := range f {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = all(d, cond)
		case "$or":
			ok, err = anyOf(d, cond)
		case "$text":
			ok, err = textMatch(d, cond)
		default:
			ok, err = fieldMatch(d, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func all(d doc, cond any) (bool, error) {
	list, ok := cond.([]any)
	if !ok {
		return false, fmt.Errorf("memstore: $and needs an array")
	}
	for _, c := range list {
		if ok, err := matches(d, c); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func anyOf(d doc, cond any) (bool, error) {
	list, ok := cond.([]any)
	if !ok {
		return false, fmt.Errorf("memstore: $or needs an array")
	}
	for _, c := range list {
		if ok, err := matches(d, c); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// textMatch approximates $text: any search word found in any string field,
// case-insensitively
func textMatch(d doc, cond any) (bool, error) {
	c, ok := cond.(doc)
	if !ok {
		return false, fmt.Errorf("memstore: $text needs a document")
	}
	term, _ := c["$search"].(string)
	words := strings.Fields(strings.ToLower(term))
	if len(words) == 0 {
		return false, nil
	}

	var found bool
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			s := strings.ToLower(val)
			for _, w := range words {
				if strings.Contains(s, w) {
					found = true
				}
			}
		case doc:
			for _, vv := range val {
				walk(vv)
			}
		case []any:
			for _, vv := range val {
				walk(vv)
			}
		}
	}
	walk(d)
	return found, nil
}

func isOperatorDoc(v any) (doc, bool) {
	m, ok := v.(doc)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func fieldMatch(d doc, field string, cond any) (bool, error) {
	vals, found := lookup(d, field)

	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return equals(vals, found, cond), nil
	}

	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = equals(vals, found, arg)
		case "$ne":
			ok = !equals(vals, found, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = ordered(vals, op, arg)
		case "$in":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("memstore: $in needs an array")
			}
			ok = in(vals, found, list)
		case "$nin":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("memstore: $nin needs an array")
			}
			ok = !in(vals, found, list)
		case "$regex":
			pat, isStr := arg.(string)
			if !isStr {
				return false, fmt.Errorf("memstore: $regex needs a string")
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return false, fmt.Errorf("memstore: $regex: %w", err)
			}
			for _, v := range candidates(vals) {
				if s, isStr := v.(string); isStr && re.MatchString(s) {
					ok = true
					break
				}
			}
		default:
			return false, fmt.Errorf("memstore: unsupported operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func equals(vals []any, found bool, want any) bool {
	if want == nil && (!found || len(vals) == 0) {
		return true
	}
	if wl, ok := want.([]any); ok {
		for _, v := range vals {
			if vl, ok := v.([]any); ok && arrayEqual(vl, wl) {
				return true
			}
		}
		return false
	}
	for _, v := range candidates(vals) {
		if c, ok := compare(v, want); ok && c == 0 {
			return true
		}
	}
	return false
}

func arrayEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if c, ok := compare(a[i], b[i]); !ok || c != 0 {
			return false
		}
	}
	return true
}

func in(vals []any, found bool, list []any) bool {
	for _, w := range list {
		if equals(vals, found, w) {
			return true
		}
	}
	return false
}

func ordered(vals []any, op string, want any) bool {
	for _, v := range candidates(vals) {
		c, ok := compare(v, want)
		if !ok {
			continue
		}
		switch op {
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// compare orders two scalar values of the same type family. ok is false
// when the values are not comparable.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case bson.ObjectID:
		bv, ok := b.(bson.ObjectID)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Hex(), bv.Hex()), true
	case bson.DateTime:
		bv, ok := b.(bson.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sortCompare orders documents for $sort; missing and null sort first
func sortCompare(a, b doc, field string) int {
	av, aok := lookup(a, field)
	bv, bok := lookup(b, field)

	var x, y any
	if aok && len(av) > 0 {
		x = av[0]
	}
	if bok && len(bv) > 0 {
		y = bv[0]
	}

	switch {
	case x == nil && y == nil:
		return 0
	case x == nil:
		return -1
	case y == nil:
		return 1
	}
	if c, ok := compare(x, y); ok {
		return c
	}
	return strings.Compare(fmt.Sprintf("%T", x), fmt.Sprintf("%T", y))
}
