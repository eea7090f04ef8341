package attrs

import "fmt"

// Combine merges two values of the same semantic attribute into one.
//
// The rules are evaluated in order, first match wins:
//
//  1. Either value absent: the present one wins (absent if both are).
//  2. Equal values: either one.
//  3. Both numbers: the maximum. A higher-confidence or higher-count value
//     must not be overwritten by a lower one arriving later.
//  4. Both collections: their union, deduplicated where elements are
//     hashable, concatenated where they are not.
//  5. Both mappings: shallow union, incoming keys win on collision.
//  6. Both text: if either is empty the other wins; otherwise a two-element
//     collection holding both, so an ambiguous pair is never silently
//     collapsed to one side.
//  7. Collection plus non-empty simple scalar: the scalar is appended into
//     the collection, deduplicated.
//  8. Both ledgers: pairwise source-set union, provided they describe the
//     same pair.
//  9. Anything else: ErrIncompatible. The caller decides whether to keep
//     the existing value or fail; Combine never picks a side here.
//
// Combine is total over the supported kinds, side-effect-free (ledgers are
// cloned before merging) and idempotent: Combine(x, x) == x for every x.
// Rules 3, 4 and 8 are commutative and associative, so folding a list of
// values yields the same result in any order.
func Combine(existing, incoming Value) (Value, error) {
	// Rule 1: absent loses to anything.
	if existing.IsAbsent() {
		return incoming, nil
	}
	if incoming.IsAbsent() {
		return existing, nil
	}

	// Rule 2: identical values need no merging.
	if Equal(existing, incoming) {
		return existing, nil
	}

	switch {
	// Rule 3: numeric conflict resolves to the maximum.
	case existing.kind == Number && incoming.kind == Number:
		if incoming.num > existing.num {
			return incoming, nil
		}
		return existing, nil

	// Rule 4: collections union.
	case existing.kind == Collection && incoming.kind == Collection:
		merged := Value{kind: Collection, coll: append([]Value(nil), existing.coll...)}
		for _, e := range incoming.coll {
			merged.coll = appendUnique(merged.coll, e)
		}
		return merged, nil

	// Rule 5: mappings take a shallow union, incoming keys override.
	case existing.kind == Mapping && incoming.kind == Mapping:
		m := make(map[string]Value, len(existing.mapping)+len(incoming.mapping))
		for k, v := range existing.mapping {
			m[k] = v
		}
		for k, v := range incoming.mapping {
			m[k] = v
		}
		return Value{kind: Mapping, mapping: m}, nil

	// Rule 6: conflicting non-empty text keeps both.
	case existing.kind == Text && incoming.kind == Text:
		if existing.empty() {
			return incoming, nil
		}
		if incoming.empty() {
			return existing, nil
		}
		return CollectionOf(existing, incoming), nil

	// Rule 7: a simple scalar joins a collection.
	case existing.kind == Collection && incoming.scalar():
		if incoming.empty() {
			return existing, nil
		}
		merged := Value{kind: Collection, coll: append([]Value(nil), existing.coll...)}
		merged.coll = appendUnique(merged.coll, incoming)
		return merged, nil

	case incoming.kind == Collection && existing.scalar():
		if existing.empty() {
			return incoming, nil
		}
		merged := Value{kind: Collection, coll: append([]Value(nil), incoming.coll...)}
		merged.coll = appendUnique(merged.coll, existing)
		return merged, nil

	// Rule 8: ledgers merge by pairwise source-set union.
	case existing.kind == Ledger && incoming.kind == Ledger:
		merged := existing.ledger.Clone()
		if err := merged.Merge(incoming.ledger); err != nil {
			return existing, fmt.Errorf("%w: %v", ErrIncompatible, err)
		}
		return LedgerOf(merged), nil
	}

	// Rule 9: no policy covers this pair of kinds.
	return existing, fmt.Errorf("%w: %s vs %s", ErrIncompatible, existing.kind, incoming.kind)
}

// Fold combines a list of values left to right, starting from Absent.
// For the commutative rules the result is independent of element order.
func Fold(values ...Value) (Value, error) {
	acc := None
	for _, v := range values {
		var err error
		acc, err = Combine(acc, v)
		if err != nil {
			return acc, err
		}
	}
	return acc, nil
}
