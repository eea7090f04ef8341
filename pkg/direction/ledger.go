// Package direction tracks directionality and sign evidence for one edge of
// an interaction network.
//
// Every interaction connects an unordered pair of molecules {A, B}, but the
// evidence behind it is rarely that tidy: one database asserts A activates B,
// another asserts B acts on A, a third only knows the two bind. A Ledger
// keeps all of those claims apart instead of flattening them into a single
// boolean. For the pair it tracks three direction keys:
//
//   - the straight key (A -> B, with A and B in canonical sorted order)
//   - the reverse key (B -> A)
//   - the undirected key (binding with no known orientation)
//
// Each key carries the set of source databases asserting it. The two directed
// keys additionally carry positive (stimulation) and negative (inhibition)
// sign claims, again with their own source sets. A signed claim is always a
// directed claim: SetSign also asserts the direction.
//
// Invariants maintained by the Ledger:
//
//   - a direction is asserted if and only if its source set is non-empty
//   - a sign is asserted if and only if its source set is non-empty
//   - signs never attach to the undirected key
//   - Merge is commutative, associative and idempotent, so folding partial
//     ledgers in any order yields the same final state
//
// Example:
//
//	d := direction.New("P04637", "Q00987")
//	d.SetDir(direction.Key{From: "P04637", To: "Q00987"}, "SignaLink")
//	d.SetSign(direction.Key{From: "P04637", To: "Q00987"}, direction.Negative, "SignaLink")
//	d.SetDir(direction.Undirected, "IntAct")
//
//	d.IsDirected()                 // true
//	d.DirSources(direction.Undirected) // ["IntAct"]
package direction

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sign labels a causal effect claim on a directed key.
type Sign string

const (
	// Positive marks a stimulation claim.
	Positive Sign = "positive"
	// Negative marks an inhibition claim.
	Negative Sign = "negative"
)

// Key addresses one direction slot of a Ledger: the ordered pair (From, To)
// for a directed claim, or Undirected for an orientation-free claim.
type Key struct {
	From string
	To   string
}

// Undirected is the reserved key for claims carrying no orientation.
var Undirected = Key{}

// IsUndirected reports whether the key is the undirected slot.
func (k Key) IsUndirected() bool {
	return k == Undirected
}

// Reversed returns the key with its endpoints swapped.
// Reversing the undirected key returns the undirected key.
func (k Key) Reversed() Key {
	if k.IsUndirected() {
		return k
	}
	return Key{From: k.To, To: k.From}
}

func (k Key) String() string {
	if k.IsUndirected() {
		return "undirected"
	}
	return k.From + " -> " + k.To
}

// Common errors.
var (
	ErrUnknownKey   = errors.New("key does not belong to this pair")
	ErrUndirected   = errors.New("signs cannot attach to the undirected key")
	ErrPairMismatch = errors.New("ledgers describe different pairs")
	ErrUnknownSign  = errors.New("unknown sign")
)

// claim is one direction or sign slot: asserted iff sources is non-empty.
type claim struct {
	sources map[string]struct{}
}

func newClaim() claim {
	return claim{sources: make(map[string]struct{})}
}

func (c *claim) add(source string) {
	c.sources[source] = struct{}{}
}

func (c *claim) remove(source string) {
	delete(c.sources, source)
}

func (c claim) asserted() bool {
	return len(c.sources) > 0
}

func (c claim) list() []string {
	out := make([]string, 0, len(c.sources))
	for s := range c.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *claim) union(other claim) {
	for s := range other.sources {
		c.sources[s] = struct{}{}
	}
}

func (c claim) clone() claim {
	out := newClaim()
	for s := range c.sources {
		out.sources[s] = struct{}{}
	}
	return out
}

// Ledger records direction and sign evidence for one unordered molecule pair.
//
// A Ledger is owned by exactly one interaction edge and is not safe for
// concurrent use; the storage engine serializes access to it.
type Ledger struct {
	nodes [2]string // canonical sorted order

	straight   claim // nodes[0] -> nodes[1]
	reverse    claim // nodes[1] -> nodes[0]
	undirected claim

	positive map[Key]claim // directed keys only
	negative map[Key]claim
}

// New creates an empty ledger for the unordered pair {nameA, nameB}.
// The argument order does not matter; endpoints are stored sorted.
func New(nameA, nameB string) *Ledger {
	nodes := [2]string{nameA, nameB}
	if nodes[1] < nodes[0] {
		nodes[0], nodes[1] = nodes[1], nodes[0]
	}
	d := &Ledger{
		nodes:      nodes,
		straight:   newClaim(),
		reverse:    newClaim(),
		undirected: newClaim(),
		positive:   make(map[Key]claim, 2),
		negative:   make(map[Key]claim, 2),
	}
	d.positive[d.Straight()] = newClaim()
	d.positive[d.Reverse()] = newClaim()
	d.negative[d.Straight()] = newClaim()
	d.negative[d.Reverse()] = newClaim()
	return d
}

// Nodes returns the pair endpoints in canonical sorted order.
func (d *Ledger) Nodes() (string, string) {
	return d.nodes[0], d.nodes[1]
}

// Straight returns the canonical forward key (smaller endpoint first).
func (d *Ledger) Straight() Key {
	return Key{From: d.nodes[0], To: d.nodes[1]}
}

// Reverse returns the canonical backward key.
func (d *Ledger) Reverse() Key {
	return Key{From: d.nodes[1], To: d.nodes[0]}
}

// CheckNodes reports whether the given names are exactly this pair,
// in either order.
func (d *Ledger) CheckNodes(nameA, nameB string) bool {
	return (nameA == d.nodes[0] && nameB == d.nodes[1]) ||
		(nameA == d.nodes[1] && nameB == d.nodes[0])
}

// checkKey validates that key addresses a slot of this ledger and returns
// the matching direction claim.
func (d *Ledger) checkKey(key Key) (*claim, error) {
	switch key {
	case Undirected:
		return &d.undirected, nil
	case d.Straight():
		return &d.straight, nil
	case d.Reverse():
		return &d.reverse, nil
	}
	return nil, fmt.Errorf("%w: %s is not {%s, %s}", ErrUnknownKey, key, d.nodes[0], d.nodes[1])
}

// SetDir asserts a direction, adding source to the key's source set.
// key must be one of the two ordered pair keys or Undirected.
func (d *Ledger) SetDir(key Key, source string) error {
	c, err := d.checkKey(key)
	if err != nil {
		return err
	}
	c.add(source)
	return nil
}

// UnsetDir withdraws one source's direction claim. When the last source is
// removed the direction is no longer asserted. Withdrawing a source that
// never asserted the key is a no-op.
func (d *Ledger) UnsetDir(key Key, source string) error {
	c, err := d.checkKey(key)
	if err != nil {
		return err
	}
	c.remove(source)
	return nil
}

// Dir reports whether the direction key is asserted by at least one source.
func (d *Ledger) Dir(key Key) bool {
	c, err := d.checkKey(key)
	if err != nil {
		return false
	}
	return c.asserted()
}

// DirSources returns the sources asserting the direction key, sorted.
func (d *Ledger) DirSources(key Key) []string {
	c, err := d.checkKey(key)
	if err != nil {
		return nil
	}
	return c.list()
}

// signClaim returns the sign slot for a directed key.
func (d *Ledger) signClaim(key Key, sign Sign) (*claim, error) {
	if key.IsUndirected() {
		return nil, ErrUndirected
	}
	if _, err := d.checkKey(key); err != nil {
		return nil, err
	}
	var m map[Key]claim
	switch sign {
	case Positive:
		m = d.positive
	case Negative:
		m = d.negative
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSign, sign)
	}
	c := m[key]
	return &c, nil
}

// SetSign asserts a stimulation or inhibition claim on a directed key.
// A signed claim is itself a directed claim, so the direction is asserted too.
func (d *Ledger) SetSign(key Key, sign Sign, source string) error {
	c, err := d.signClaim(key, sign)
	if err != nil {
		return err
	}
	c.add(source)
	return d.SetDir(key, source)
}

// UnsetSign withdraws one source's sign claim. The direction claim itself is
// left untouched.
func (d *Ledger) UnsetSign(key Key, sign Sign, source string) error {
	c, err := d.signClaim(key, sign)
	if err != nil {
		return err
	}
	c.remove(source)
	return nil
}

// HasSign reports whether the sign is asserted on the directed key.
func (d *Ledger) HasSign(key Key, sign Sign) bool {
	c, err := d.signClaim(key, sign)
	if err != nil {
		return false
	}
	return c.asserted()
}

// SignSources returns the sources asserting the sign on the key, sorted.
func (d *Ledger) SignSources(key Key, sign Sign) []string {
	c, err := d.signClaim(key, sign)
	if err != nil {
		return nil
	}
	return c.list()
}

// IsDirected reports whether either directed key is asserted.
// The undirected key does not count.
func (d *Ledger) IsDirected() bool {
	return d.straight.asserted() || d.reverse.asserted()
}

// IsStimulation reports whether a positive sign is asserted on any directed key.
func (d *Ledger) IsStimulation() bool {
	for _, c := range d.positive {
		if c.asserted() {
			return true
		}
	}
	return false
}

// IsInhibition reports whether a negative sign is asserted on any directed key.
func (d *Ledger) IsInhibition() bool {
	for _, c := range d.negative {
		if c.asserted() {
			return true
		}
	}
	return false
}

// WhichDirs returns the asserted directed keys, excluding the undirected one.
// The straight key, if asserted, comes first.
func (d *Ledger) WhichDirs() []Key {
	var keys []Key
	if d.straight.asserted() {
		keys = append(keys, d.Straight())
	}
	if d.reverse.asserted() {
		keys = append(keys, d.Reverse())
	}
	return keys
}

// Merge folds another ledger for the same pair into this one: the pairwise
// union of every source set. Merging is commutative, associative and
// idempotent, so batch-merge and incremental-merge agree on the final state.
//
// Merging a ledger for a different pair fails without modifying either side.
func (d *Ledger) Merge(other *Ledger) error {
	if other == nil {
		return nil
	}
	if !d.CheckNodes(other.nodes[0], other.nodes[1]) {
		return fmt.Errorf("%w: {%s, %s} vs {%s, %s}", ErrPairMismatch,
			d.nodes[0], d.nodes[1], other.nodes[0], other.nodes[1])
	}
	d.straight.union(other.straight)
	d.reverse.union(other.reverse)
	d.undirected.union(other.undirected)
	for _, key := range []Key{d.Straight(), d.Reverse()} {
		pc := d.positive[key]
		pc.union(other.positive[key])
		nc := d.negative[key]
		nc.union(other.negative[key])
	}
	return nil
}

// Clone returns a deep copy sharing no state with the original.
func (d *Ledger) Clone() *Ledger {
	out := New(d.nodes[0], d.nodes[1])
	out.straight = d.straight.clone()
	out.reverse = d.reverse.clone()
	out.undirected = d.undirected.clone()
	for _, key := range []Key{d.Straight(), d.Reverse()} {
		out.positive[key] = d.positive[key].clone()
		out.negative[key] = d.negative[key].clone()
	}
	return out
}

// Equal reports whether two ledgers describe the same pair with identical
// fully-expanded source sets.
func (d *Ledger) Equal(other *Ledger) bool {
	if other == nil || d.nodes != other.nodes {
		return false
	}
	eq := func(a, b claim) bool {
		if len(a.sources) != len(b.sources) {
			return false
		}
		for s := range a.sources {
			if _, ok := b.sources[s]; !ok {
				return false
			}
		}
		return true
	}
	if !eq(d.straight, other.straight) || !eq(d.reverse, other.reverse) ||
		!eq(d.undirected, other.undirected) {
		return false
	}
	for _, key := range []Key{d.Straight(), d.Reverse()} {
		if !eq(d.positive[key], other.positive[key]) ||
			!eq(d.negative[key], other.negative[key]) {
			return false
		}
	}
	return true
}

// String renders the ledger for logs and debugging.
func (d *Ledger) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "directions and signs between %s and %s\n", d.nodes[0], d.nodes[1])
	if d.straight.asserted() {
		fmt.Fprintf(&b, "\t%s ===> %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(d.straight.list(), ", "))
	}
	if d.reverse.asserted() {
		fmt.Fprintf(&b, "\t%s <=== %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(d.reverse.list(), ", "))
	}
	if d.undirected.asserted() {
		fmt.Fprintf(&b, "\t%s ==== %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(d.undirected.list(), ", "))
	}
	if c := d.positive[d.Straight()]; c.asserted() {
		fmt.Fprintf(&b, "\t%s =+=> %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(c.list(), ", "))
	}
	if c := d.positive[d.Reverse()]; c.asserted() {
		fmt.Fprintf(&b, "\t%s <=+= %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(c.list(), ", "))
	}
	if c := d.negative[d.Straight()]; c.asserted() {
		fmt.Fprintf(&b, "\t%s =-=> %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(c.list(), ", "))
	}
	if c := d.negative[d.Reverse()]; c.asserted() {
		fmt.Fprintf(&b, "\t%s <=-= %s :: %s\n", d.nodes[0], d.nodes[1], strings.Join(c.list(), ", "))
	}
	return b.String()
}

// ledgerJSON is the serialized form: endpoints plus expanded source lists.
type ledgerJSON struct {
	Nodes      [2]string `json:"nodes"`
	Straight   []string  `json:"straight,omitempty"`
	Reverse    []string  `json:"reverse,omitempty"`
	Undirected []string  `json:"undirected,omitempty"`
	PosStr     []string  `json:"positiveStraight,omitempty"`
	PosRev     []string  `json:"positiveReverse,omitempty"`
	NegStr     []string  `json:"negativeStraight,omitempty"`
	NegRev     []string  `json:"negativeReverse,omitempty"`
}

// MarshalJSON serializes the ledger with fully expanded source sets.
func (d *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{
		Nodes:      d.nodes,
		Straight:   d.straight.list(),
		Reverse:    d.reverse.list(),
		Undirected: d.undirected.list(),
		PosStr:     d.positive[d.Straight()].list(),
		PosRev:     d.positive[d.Reverse()].list(),
		NegStr:     d.negative[d.Straight()].list(),
		NegRev:     d.negative[d.Reverse()].list(),
	})
}

// UnmarshalJSON restores a ledger serialized by MarshalJSON.
func (d *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshaling ledger: %w", err)
	}
	restored := New(raw.Nodes[0], raw.Nodes[1])
	fill := func(c *claim, sources []string) {
		for _, s := range sources {
			c.add(s)
		}
	}
	fill(&restored.straight, raw.Straight)
	fill(&restored.reverse, raw.Reverse)
	fill(&restored.undirected, raw.Undirected)
	ps := restored.positive[restored.Straight()]
	fill(&ps, raw.PosStr)
	pr := restored.positive[restored.Reverse()]
	fill(&pr, raw.PosRev)
	ns := restored.negative[restored.Straight()]
	fill(&ns, raw.NegStr)
	nr := restored.negative[restored.Reverse()]
	fill(&nr, raw.NegRev)
	*d = *restored
	return nil
}
