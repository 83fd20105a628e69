package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// ResponseKind tells which of the three accepted reflection shapes is held.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseList
	ResponseFields
)

// ReflectionResponses is a tagged union over the shapes a reflection has
// been stored as: a single string, a list of answers, or named fields.
type ReflectionResponses struct {
	Kind   ResponseKind
	Text   string
	List   []string
	Fields map[string]string
}

func TextResponses(s string) ReflectionResponses {
	return ReflectionResponses{Kind: ResponseText, Text: s}
}

func ListResponses(items ...string) ReflectionResponses {
	return ReflectionResponses{Kind: ResponseList, List: append([]string{}, items...)}
}

func FieldResponses(fields map[string]string) ReflectionResponses {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return ReflectionResponses{Kind: ResponseFields, Fields: out}
}

// IsEmpty reports whether no answer has any non-blank text.
func (r ReflectionResponses) IsEmpty() bool {
	switch r.Kind {
	case ResponseList:
		for _, s := range r.List {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	case ResponseFields:
		for _, s := range r.Fields {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	default:
		return strings.TrimSpace(r.Text) == ""
	}
}

// Clone returns a deep copy.
func (r ReflectionResponses) Clone() ReflectionResponses {
	switch r.Kind {
	case ResponseList:
		return ListResponses(r.List...)
	case ResponseFields:
		return FieldResponses(r.Fields)
	default:
		return r
	}
}

// FieldKeys returns field names in sorted order.
func (r ReflectionResponses) FieldKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the plain JSON-shaped value (string, []string or map).
func (r ReflectionResponses) Value() any {
	switch r.Kind {
	case ResponseList:
		if r.List == nil {
			return []string{}
		}
		return r.List
	case ResponseFields:
		if r.Fields == nil {
			return map[string]string{}
		}
		return r.Fields
	default:
		return r.Text
	}
}

func (r ReflectionResponses) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// UnmarshalJSON accepts any of the three shapes. Anything else decodes to
// empty text; bounds are applied by the validator, not here.
func (r *ReflectionResponses) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = TextResponses(text)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = ListResponses(list...)
		return nil
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err == nil {
		*r = FieldResponses(fields)
		return nil
	}
	*r = TextResponses("")
	return nil
}
