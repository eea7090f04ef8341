// Package integrate is the heart of the network build: it folds
// standardized interaction records from many sources into one attributed
// graph, merging conflicting evidence deterministically.
//
// The package is built around three pieces:
//
//   - Builder, which owns the storage engine and drives all mutation
//   - the upsert operations, which find-or-create nodes and edges and
//     fold a record's attributes into the existing state
//   - the consistency pass (Clean), which removes duplicate edges,
//     unmapped placeholders, foreign-organism nodes and orphans
//
// All merge rules are commutative and associative, so loading the same
// sources in any order produces an identical network.
package integrate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tkovacs/molnet/pkg/attrs"
	"github.com/tkovacs/molnet/pkg/direction"
	"github.com/tkovacs/molnet/pkg/reflist"
	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/storage"
)

// ErrEdgeCreationNotPermitted is returned when an edge upsert would have
// to create a missing edge but the caller forbade creation. During a
// batch load all edges are created in the bulk pass, so hitting this in
// the attribute pass means the passes disagree; the failure is recorded
// and the load continues.
var ErrEdgeCreationNotPermitted = errors.New("edge creation not permitted")

// FailedEdge records one refused edge creation for later inspection.
type FailedEdge struct {
	NodeA  storage.NodeID
	NodeB  storage.NodeID
	Source string
}

// Builder integrates interaction records into a storage engine. It is not
// safe for concurrent use: loads are batch operations driven by a single
// goroutine, which is what keeps the merge order deterministic.
type Builder struct {
	engine   storage.Engine
	mapper   resolve.Mapper
	reflists *reflist.Registry
	logger   *zap.Logger

	// defaultIDTypes maps a molecule kind to its canonical identifier
	// namespace, the target of all name resolution.
	defaultIDTypes map[string]string

	// allowedTaxa restricts the network to these organisms during the
	// consistency pass. Empty means no taxon filtering.
	allowedTaxa map[int]struct{}

	allowLoops bool

	// Attribute type registry: each extra attribute is typed scalar or
	// collection at first use, network-wide.
	nodeAttrKinds map[string]attrs.Kind
	edgeAttrKinds map[string]attrs.Kind

	failedEdges []FailedEdge
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithMapper sets the identifier resolver. Defaults to resolve.Identity,
// which passes names through unchanged.
func WithMapper(m resolve.Mapper) Option {
	return func(b *Builder) { b.mapper = m }
}

// WithReferenceLists registers reference identifier lists. When set, the
// consistency pass validates every node against them.
func WithReferenceLists(r *reflist.Registry) Option {
	return func(b *Builder) { b.reflists = r }
}

// WithAllowedTaxa restricts the network to the given organisms during the
// consistency pass.
func WithAllowedTaxa(taxa ...int) Option {
	return func(b *Builder) {
		b.allowedTaxa = make(map[int]struct{}, len(taxa))
		for _, t := range taxa {
			b.allowedTaxa[t] = struct{}{}
		}
	}
}

// WithLoops permits self-interactions. By default the consistency pass
// removes them and loads skip them.
func WithLoops() Option {
	return func(b *Builder) { b.allowLoops = true }
}

// WithDefaultIDType sets the canonical identifier namespace for one
// molecule kind, e.g. "protein" -> "uniprot".
func WithDefaultIDType(kind, idType string) Option {
	return func(b *Builder) { b.defaultIDTypes[strings.ToLower(kind)] = idType }
}

// NewBuilder creates a Builder over the given engine.
func NewBuilder(engine storage.Engine, opts ...Option) *Builder {
	b := &Builder{
		engine:         engine,
		mapper:         resolve.Identity{},
		logger:         zap.NewNop(),
		defaultIDTypes: make(map[string]string),
		nodeAttrKinds:  make(map[string]attrs.Kind),
		edgeAttrKinds:  make(map[string]attrs.Kind),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Engine exposes the underlying storage engine for read access.
func (b *Builder) Engine() storage.Engine {
	return b.engine
}

// FailedEdges returns the edge creations refused so far.
func (b *Builder) FailedEdges() []FailedEdge {
	out := make([]FailedEdge, len(b.failedEdges))
	copy(out, b.failedEdges)
	return out
}

// defaultIDType returns the canonical namespace for a kind, falling back
// to the source namespace when none is configured.
func (b *Builder) defaultIDType(kind, nameType string) string {
	if t, ok := b.defaultIDTypes[strings.ToLower(kind)]; ok {
		return t
	}
	return nameType
}

// NodeIdentity is one resolved endpoint, ready for upsert.
type NodeIdentity struct {
	ID           storage.NodeID
	Kind         string
	IDType       string
	Taxon        int
	OriginalName string
	OriginalType string
}

// UpsertNode finds or creates the molecule for an identity and folds the
// record's contribution into it: the original pre-mapping name, the
// source label, and any extra attributes. Returns the number of attribute
// type conflicts encountered.
func (b *Builder) UpsertNode(ident NodeIdentity, srcName string, extra map[string]any) (int, error) {
	mol, err := b.engine.GetMolecule(ident.ID)
	if errors.Is(err, storage.ErrNotFound) {
		mol = b.newMolecule(ident)
		if err := b.engine.CreateMolecule(mol); err != nil {
			return 0, fmt.Errorf("creating molecule %s: %w", ident.ID, err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("looking up molecule %s: %w", ident.ID, err)
	}

	if mol.OriginalNames == nil {
		mol.OriginalNames = make(map[string]string)
	}
	if mol.Properties == nil {
		mol.Properties = make(map[string]any)
	}
	mol.OriginalNames[ident.OriginalName] = ident.OriginalType
	mol.Sources = appendUnique(mol.Sources, srcName)
	if mol.Label == "" {
		mol.Label = string(ident.ID)
	}

	conflicts := b.mergeCore(mol, ident)
	conflicts += b.foldAttrs(mol.Properties, extra, b.nodeAttrKinds,
		zap.String("molecule", string(ident.ID)))

	if err := b.engine.UpdateMolecule(mol); err != nil {
		return conflicts, fmt.Errorf("updating molecule %s: %w", ident.ID, err)
	}
	return conflicts, nil
}

// mergeCore folds an identity's core fields into an existing molecule
// using the attribute combination rules, so the outcome does not depend
// on record order: the numeric taxon keeps the maximum, text fields
// resolve to the non-empty side, and two conflicting non-empty text
// values keep the stored one and count as a conflict.
func (b *Builder) mergeCore(mol *storage.Molecule, ident NodeIdentity) int {
	if ident.Taxon > mol.Taxon {
		mol.Taxon = ident.Taxon
	}

	conflicts := 0
	fields := []struct {
		name   string
		stored *string
		in     string
	}{
		{"kind", &mol.Kind, ident.Kind},
		{"idType", &mol.IDType, ident.IDType},
	}
	for _, f := range fields {
		switch {
		case f.in == "" || f.in == *f.stored:
		case *f.stored == "":
			*f.stored = f.in
		default:
			b.logger.Warn("conflicting core field, keeping stored value",
				zap.String("molecule", string(ident.ID)),
				zap.String("field", f.name),
				zap.String("stored", *f.stored),
				zap.String("incoming", f.in))
			conflicts++
		}
	}
	return conflicts
}

func (b *Builder) newMolecule(ident NodeIdentity) *storage.Molecule {
	return &storage.Molecule{
		ID:     ident.ID,
		Kind:   ident.Kind,
		IDType: ident.IDType,
		Label:  string(ident.ID),
		Taxon:  ident.Taxon,
		OriginalNames: map[string]string{
			ident.OriginalName: ident.OriginalType,
		},
		Sources:    []string{},
		Properties: make(map[string]any),
	}
}

// EdgeContribution is one record's evidence about a pair.
type EdgeContribution struct {
	Source          string
	IsDirected      bool
	References      []string
	IsStimulation   bool
	IsInhibition    bool
	InteractionType string
	Extra           map[string]any
}

// UpsertEdge folds one record's evidence into the edge between idA and
// idB. When the edge does not exist and allowCreate is false, the failure
// is recorded and ErrEdgeCreationNotPermitted returned; the caller is
// expected to continue the batch. Returns the number of attribute type
// conflicts encountered.
func (b *Builder) UpsertEdge(idA, idB storage.NodeID, c EdgeContribution, allowCreate bool) (int, error) {
	pair := storage.NewPairKey(idA, idB)
	edgeID := pair.InteractionID()

	ia, err := b.engine.GetInteraction(edgeID)
	if errors.Is(err, storage.ErrNotFound) {
		if !allowCreate {
			b.failedEdges = append(b.failedEdges, FailedEdge{NodeA: idA, NodeB: idB, Source: c.Source})
			return 0, fmt.Errorf("%w: %s <-> %s", ErrEdgeCreationNotPermitted, idA, idB)
		}
		ia = newInteraction(pair)
		if err := b.engine.CreateInteraction(ia); err != nil {
			return 0, fmt.Errorf("creating interaction %s: %w", edgeID, err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("looking up interaction %s: %w", edgeID, err)
	}

	ia.Sources = appendUnique(ia.Sources, c.Source)
	ia.References = appendUniqueAll(ia.References, c.References)
	if ia.RefsBySource == nil {
		ia.RefsBySource = make(map[string][]string)
	}
	if ia.Properties == nil {
		ia.Properties = make(map[string]any)
	}
	ia.RefsBySource[c.Source] = appendUniqueAll(ia.RefsBySource[c.Source], c.References)
	ia.Type = mergeInteractionType(ia.Type, c.InteractionType)

	if ia.Dirs == nil {
		ia.Dirs = direction.New(string(pair.A), string(pair.B))
	}
	if err := b.recordDirection(ia.Dirs, idA, idB, c); err != nil {
		return 0, err
	}

	conflicts := b.foldAttrs(ia.Properties, c.Extra, b.edgeAttrKinds,
		zap.String("interaction", string(edgeID)))

	if err := b.engine.UpdateInteraction(ia); err != nil {
		return conflicts, fmt.Errorf("updating interaction %s: %w", edgeID, err)
	}
	return conflicts, nil
}

func newInteraction(pair storage.PairKey) *storage.Interaction {
	return &storage.Interaction{
		ID:           pair.InteractionID(),
		NodeA:        pair.A,
		NodeB:        pair.B,
		Sources:      []string{},
		References:   []string{},
		RefsBySource: make(map[string][]string),
		Dirs:         direction.New(string(pair.A), string(pair.B)),
		Properties:   make(map[string]any),
	}
}

// recordDirection writes one record's direction and sign claims into the
// ledger. Signs attach only to directed claims.
func (b *Builder) recordDirection(d *direction.Ledger, idA, idB storage.NodeID, c EdgeContribution) error {
	key := direction.Undirected
	if c.IsDirected {
		key = direction.Key{From: string(idA), To: string(idB)}
	}
	if err := d.SetDir(key, c.Source); err != nil {
		return fmt.Errorf("recording direction for %s <-> %s: %w", idA, idB, err)
	}
	if !c.IsDirected {
		return nil
	}
	if c.IsStimulation {
		if err := d.SetSign(key, direction.Positive, c.Source); err != nil {
			return fmt.Errorf("recording stimulation for %s -> %s: %w", idA, idB, err)
		}
	}
	if c.IsInhibition {
		if err := d.SetSign(key, direction.Negative, c.Source); err != nil {
			return fmt.Errorf("recording inhibition for %s -> %s: %w", idA, idB, err)
		}
	}
	return nil
}

// foldAttrs merges extra attributes into an existing property map via the
// combinator, tracking first-use attribute types. Incompatible merges
// keep the existing value and are counted, not fatal.
func (b *Builder) foldAttrs(props map[string]any, extra map[string]any, kinds map[string]attrs.Kind, ctx zap.Field) int {
	conflicts := 0
	for _, name := range sortedKeys(extra) {
		incoming := attrs.FromAny(extra[name])
		if incoming.IsAbsent() {
			continue
		}
		if _, typed := kinds[name]; !typed {
			kinds[name] = incoming.Kind()
		}

		existing := attrs.FromAny(props[name])
		merged, err := attrs.Combine(existing, incoming)
		if err != nil {
			conflicts++
			b.logger.Warn("attribute merge conflict, keeping existing value",
				ctx,
				zap.String("attribute", name),
				zap.String("existing", existing.Kind().String()),
				zap.String("incoming", incoming.Kind().String()))
		}
		if merged.Kind() == attrs.Collection {
			kinds[name] = attrs.Collection
		}
		props[name] = merged.ToAny()
	}
	return conflicts
}

// mergeInteractionType merges interaction type labels. Distinct labels
// accumulate into a sorted semicolon-joined composite.
func mergeInteractionType(existing, incoming string) string {
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	parts := appendUniqueAll(strings.Split(existing, ";"), strings.Split(incoming, ";"))
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func appendUnique(dst []string, v string) []string {
	for _, x := range dst {
		if x == v {
			return dst
		}
	}
	return append(dst, v)
}

func appendUniqueAll(dst []string, src []string) []string {
	for _, v := range src {
		if v == "" {
			continue
		}
		dst = appendUnique(dst, v)
	}
	return dst
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
