package extractor

import (
	"encoding/json"
	"strconv"
	"strings"

	"sjsage522/storefrontscraper/helpers"
)

// valueFunc turns a located JSON value into a string, reporting false when
// the value has the wrong shape.
type valueFunc func(interface{}) (string, bool)

// lookup is one attempt in a chain: a field path and how to read its value.
// Path elements index objects by key and arrays by decimal position.
type lookup struct {
	path []string
	read valueFunc
}

// chain is an ordered list of lookups; the first non-empty result wins
type chain []lookup

func (c chain) resolve(v interface{}) string {
	for _, l := range c {
		found, ok := dig(v, l.path...)
		if !ok {
			continue
		}
		if s, ok := l.read(found); ok && s != "" {
			return s
		}
	}
	return ""
}

// at builds a lookup for a dotted path
func at(path string, read valueFunc) lookup {
	return lookup{path: strings.Split(path, "."), read: read}
}

// dig follows path through nested objects and arrays
func dig(v interface{}, path ...string) (interface{}, bool) {
	cur := v
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[key]
			if !ok || next == nil {
				return nil, false
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// scalar reads strings and numbers
func scalar(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return helpers.Normalize(x), true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// price reads a scalar price; bare numbers get the rouble suffix
func price(v interface{}) (string, bool) {
	switch v.(type) {
	case string:
		return scalar(v)
	case json.Number, float64, int, int64:
		s, ok := scalar(v)
		return s + " ₽", ok
	default:
		return "", false
	}
}

// srcOrScalar reads either a plain value or an object's src field
func srcOrScalar(v interface{}) (string, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return scalar(m["src"])
	}
	return scalar(v)
}

// nameOrScalar reads either a plain value or an object's name field
func nameOrScalar(v interface{}) (string, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return scalar(m["name"])
	}
	return scalar(v)
}

// firstArray returns the first non-empty array found at any of the paths
func firstArray(v interface{}, paths ...string) []interface{} {
	for _, p := range paths {
		found, ok := dig(v, strings.Split(p, ".")...)
		if !ok {
			continue
		}
		if arr, ok := found.([]interface{}); ok && len(arr) > 0 {
			return arr
		}
	}
	return nil
}
