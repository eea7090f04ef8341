// Package attrs implements deterministic merging of attribute values drawn
// from many inconsistent data sources.
//
// Every node and edge of the integrated network carries an open-ended set of
// attributes. When two sources disagree about the same attribute the value is
// never silently overwritten; instead the two values are combined by a fixed
// policy table (see Combine). To make that table total and checkable, values
// are represented as a tagged union rather than bare interface values:
//
//	Absent | Number | Text | Collection | Mapping | Ledger
//
// Values convert to and from plain Go values (float64/int/string/[]any/
// map[string]any/*direction.Ledger) at the storage boundary via FromAny and
// ToAny, so graph properties stay ordinary JSON-friendly maps.
package attrs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tkovacs/molnet/pkg/direction"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	// Absent is the zero Value: no data.
	Absent Kind = iota
	// Number holds a float64. All numeric inputs normalize to float64.
	Number
	// Text holds a string.
	Text
	// Collection holds an ordered, deduplicated list of Values.
	Collection
	// Mapping holds string-keyed sub-values.
	Mapping
	// Ledger holds a per-edge direction ledger.
	Ledger
)

// String returns the kind name for logs and type-conflict warnings.
func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Number:
		return "number"
	case Text:
		return "text"
	case Collection:
		return "collection"
	case Mapping:
		return "mapping"
	case Ledger:
		return "ledger"
	}
	return "unknown"
}

// ErrIncompatible is returned by Combine when no rule covers the two kinds.
// Callers are expected to log the conflict and keep the existing value
// rather than drop data silently.
var ErrIncompatible = errors.New("incompatible attribute values")

// Value is one attribute value: a tagged union over the supported kinds.
// The zero Value is Absent.
type Value struct {
	kind    Kind
	num     float64
	text    string
	coll    []Value
	mapping map[string]Value
	ledger  *direction.Ledger
}

// None is the absent value.
var None = Value{}

// NumberOf wraps a float64.
func NumberOf(f float64) Value { return Value{kind: Number, num: f} }

// TextOf wraps a string.
func TextOf(s string) Value { return Value{kind: Text, text: s} }

// CollectionOf builds a deduplicated collection from the given elements.
func CollectionOf(elems ...Value) Value {
	v := Value{kind: Collection}
	for _, e := range elems {
		v.coll = appendUnique(v.coll, e)
	}
	return v
}

// MappingOf wraps string-keyed sub-values. The map is copied.
func MappingOf(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Value{kind: Mapping, mapping: out}
}

// LedgerOf wraps a direction ledger. The ledger is referenced, not copied.
func LedgerOf(d *direction.Ledger) Value {
	if d == nil {
		return None
	}
	return Value{kind: Ledger, ledger: d}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value holds no data.
func (v Value) IsAbsent() bool { return v.kind == Absent }

// Num returns the numeric payload; zero unless Kind is Number.
func (v Value) Num() float64 { return v.num }

// Str returns the text payload; empty unless Kind is Text.
func (v Value) Str() string { return v.text }

// Elems returns the collection payload; nil unless Kind is Collection.
func (v Value) Elems() []Value { return v.coll }

// Map returns the mapping payload; nil unless Kind is Mapping.
func (v Value) Map() map[string]Value { return v.mapping }

// Dirs returns the ledger payload; nil unless Kind is Ledger.
func (v Value) Dirs() *direction.Ledger { return v.ledger }

// FromAny converts a plain Go value into a Value.
//
// Numbers of any width become Number, strings become Text, []any becomes
// Collection, map[string]any becomes Mapping, *direction.Ledger becomes
// Ledger and nil becomes Absent. []string is accepted as a convenience for
// reference lists and source sets. Unrecognized Go types become Text via
// fmt.Sprint so no record field is ever lost outright.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return None
	case Value:
		return x
	case float64:
		return NumberOf(x)
	case float32:
		return NumberOf(float64(x))
	case int:
		return NumberOf(float64(x))
	case int64:
		return NumberOf(float64(x))
	case int32:
		return NumberOf(float64(x))
	case uint:
		return NumberOf(float64(x))
	case uint64:
		return NumberOf(float64(x))
	case uint32:
		return NumberOf(float64(x))
	case bool:
		if x {
			return NumberOf(1)
		}
		return NumberOf(0)
	case string:
		return TextOf(x)
	case []string:
		elems := make([]Value, 0, len(x))
		for _, s := range x {
			elems = append(elems, TextOf(s))
		}
		return CollectionOf(elems...)
	case []any:
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, FromAny(e))
		}
		return CollectionOf(elems...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromAny(e)
		}
		return Value{kind: Mapping, mapping: m}
	case *direction.Ledger:
		return LedgerOf(x)
	}
	return TextOf(fmt.Sprint(raw))
}

// ToAny converts a Value back to a plain Go value suitable for a property
// map: float64, string, []any, map[string]any, *direction.Ledger or nil.
func (v Value) ToAny() any {
	switch v.kind {
	case Absent:
		return nil
	case Number:
		return v.num
	case Text:
		return v.text
	case Collection:
		out := make([]any, 0, len(v.coll))
		for _, e := range v.coll {
			out = append(out, e.ToAny())
		}
		return out
	case Mapping:
		m := make(map[string]any, len(v.mapping))
		for k, e := range v.mapping {
			m[k] = e.ToAny()
		}
		return m
	case Ledger:
		return v.ledger
	}
	return nil
}

// Zero returns the zero value for a kind: empty collection for Collection,
// empty mapping for Mapping, empty text for Text, 0 for Number, Absent
// otherwise. Used when an attribute key is backfilled onto entities that
// never saw it.
func Zero(k Kind) Value {
	switch k {
	case Number:
		return NumberOf(0)
	case Text:
		return TextOf("")
	case Collection:
		return Value{kind: Collection}
	case Mapping:
		return Value{kind: Mapping, mapping: map[string]Value{}}
	}
	return None
}

// scalar reports whether the value is a simple scalar (number or text).
func (v Value) scalar() bool {
	return v.kind == Number || v.kind == Text
}

// empty reports whether a scalar carries no content. Numbers are never
// empty; only the empty string is.
func (v Value) empty() bool {
	return v.kind == Text && v.text == ""
}

// hashKey returns a canonical identity string for deduplication, and false
// for unhashable variants (collections, mappings, ledgers).
func (v Value) hashKey() (string, bool) {
	switch v.kind {
	case Absent:
		return "absent", true
	case Number:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64), true
	case Text:
		return "t:" + v.text, true
	}
	return "", false
}

// appendUnique appends elem unless an equal hashable element is present.
// Unhashable elements are concatenated; lossy dedup is the accepted
// trade-off for structured sub-objects.
func appendUnique(coll []Value, elem Value) []Value {
	if key, ok := elem.hashKey(); ok {
		for _, e := range coll {
			if k, ok2 := e.hashKey(); ok2 && k == key {
				return coll
			}
		}
	}
	return append(coll, elem)
}

// Equal reports deep equality of two values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Absent:
		return true
	case Number:
		return a.num == b.num
	case Text:
		return a.text == b.text
	case Collection:
		if len(a.coll) != len(b.coll) {
			return false
		}
		for i := range a.coll {
			if !Equal(a.coll[i], b.coll[i]) {
				return false
			}
		}
		return true
	case Mapping:
		if len(a.mapping) != len(b.mapping) {
			return false
		}
		for k, av := range a.mapping {
			bv, ok := b.mapping[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case Ledger:
		if a.ledger == nil || b.ledger == nil {
			return a.ledger == b.ledger
		}
		return a.ledger.Equal(b.ledger)
	}
	return false
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.kind {
	case Absent:
		return "<absent>"
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case Text:
		return strconv.Quote(v.text)
	case Collection:
		parts := make([]string, 0, len(v.coll))
		for _, e := range v.coll {
			parts = append(parts, e.String())
		}
		return "[" + joinStrings(parts) + "]"
	case Mapping:
		keys := make([]string, 0, len(v.mapping))
		for k := range v.mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+v.mapping[k].String())
		}
		return "{" + joinStrings(parts) + "}"
	case Ledger:
		return "<ledger>"
	}
	return "<unknown>"
}

func joinStrings(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
