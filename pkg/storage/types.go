// Package storage provides the graph storage engine interface and
// implementations for MolNet.
//
// The storage layer holds the integrated molecular interaction network: one
// node per molecule, at most one edge per unordered molecule pair. It decides
// nothing about how evidence is merged; the integration layer does that and
// writes the result here. Two implementations are provided:
//
//   - MemoryEngine: in-memory storage, the default for batch integration
//   - BadgerEngine: persistent disk storage for snapshotting a built network
//
// Both are safe for concurrent use, although the integration pipeline itself
// is a single writer.
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	mol := &storage.Molecule{
//		ID:     "P04637",
//		Kind:   "protein",
//		IDType: "uniprot",
//		Taxon:  9606,
//	}
//	engine.CreateMolecule(mol)
//
//	pair := storage.NewPairKey("P04637", "Q00987")
//	ia := &storage.Interaction{
//		ID:    pair.InteractionID(),
//		NodeA: pair.A,
//		NodeB: pair.B,
//		Type:  "PPI",
//		Dirs:  direction.New(string(pair.A), string(pair.B)),
//	}
//	engine.CreateInteraction(ia)
package storage

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/tkovacs/molnet/pkg/direction"
)

// Common errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid interaction: endpoint molecule not found")
	ErrStorageClosed = errors.New("storage closed")
)

// NodeID is the canonical identifier of a molecule, unique across the
// whole network within its identifier-type namespace.
type NodeID string

// EdgeID identifies one interaction. IDs produced by PairKey.InteractionID
// are deterministic digests of the pair, so reloading the same records
// yields the same IDs.
type EdgeID string

// PairKey is the canonical (sorted) form of an unordered molecule pair.
// It addresses exactly one interaction regardless of argument order.
type PairKey struct {
	A NodeID
	B NodeID
}

// NewPairKey returns the canonical pair key for two molecule identifiers.
func NewPairKey(a, b NodeID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// InteractionID derives the deterministic interaction ID for this pair:
// a truncated BLAKE2b digest of the sorted endpoints.
func (p PairKey) InteractionID() EdgeID {
	sum := blake2b.Sum256([]byte(string(p.A) + "\x00" + string(p.B)))
	return EdgeID(hex.EncodeToString(sum[:12]))
}

// IsLoop reports whether both endpoints are the same molecule.
func (p PairKey) IsLoop() bool {
	return p.A == p.B
}

// Molecule is one node of the integrated network.
//
// The identifier is the canonical one chosen for the molecule kind (for
// example a UniProt accession for proteins). OriginalNames preserves every
// pre-mapping identifier the molecule was referred to by, keyed by the
// original identifier with the source identifier-type as value. Properties
// is the open-ended extra-attribute map; its per-key scalar/collection
// typing is owned by the integration layer, not by storage.
type Molecule struct {
	ID     NodeID `json:"id"`
	Kind   string `json:"kind"`
	IDType string `json:"idType"`
	Label  string `json:"label,omitempty"`
	Taxon  int    `json:"taxon"`

	// OriginalNames maps pre-mapping identifiers to their identifier types.
	OriginalNames map[string]string `json:"originalNames,omitempty"`

	// Sources is the set of databases whose edges touch this molecule,
	// refreshed by the integration layer after every load.
	Sources []string `json:"sources,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Interaction is one edge of the integrated network: the aggregate of all
// cross-source evidence about one unordered molecule pair.
//
// NodeA and NodeB are stored in canonical sorted order. Directionality and
// sign evidence live in the Dirs ledger, never in Properties.
type Interaction struct {
	ID    EdgeID `json:"id"`
	NodeA NodeID `json:"nodeA"`
	NodeB NodeID `json:"nodeB"`

	// Type is the molecule-kind-specific interaction type (PPI, TF-target,
	// PTM, ...).
	Type string `json:"type,omitempty"`

	// Sources names every database contributing evidence to this edge.
	Sources []string `json:"sources,omitempty"`

	// References is the deduplicated union of bibliographic references.
	References []string `json:"references,omitempty"`

	// RefsBySource maps each source to the references it contributed.
	RefsBySource map[string][]string `json:"refsBySource,omitempty"`

	// Dirs is the direction/sign provenance ledger for the pair.
	Dirs *direction.Ledger `json:"dirs,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Pair returns the canonical pair key of the interaction's endpoints.
func (i *Interaction) Pair() PairKey {
	return NewPairKey(i.NodeA, i.NodeB)
}

// Engine is the storage engine interface for the integrated network.
//
// All implementations must be safe for concurrent use and must return
// copies of stored entities, so callers mutate freely and write back via
// the Update methods.
type Engine interface {
	// Molecule operations
	CreateMolecule(m *Molecule) error
	GetMolecule(id NodeID) (*Molecule, error)
	UpdateMolecule(m *Molecule) error
	DeleteMolecule(id NodeID) error
	HasMolecule(id NodeID) bool

	// Interaction operations
	CreateInteraction(i *Interaction) error
	GetInteraction(id EdgeID) (*Interaction, error)
	UpdateInteraction(i *Interaction) error
	DeleteInteraction(id EdgeID) error

	// Query operations
	GetInteractionsBetween(a, b NodeID) ([]*Interaction, error)
	GetInteractionsOf(id NodeID) ([]*Interaction, error)
	GetMoleculesByKind(kind string) ([]*Molecule, error)
	AllMolecules() ([]*Molecule, error)
	AllInteractions() ([]*Interaction, error)

	// Degree operations (orphan pruning, statistics)
	GetDegree(id NodeID) int

	// Bulk operations (for the batch loader's node and edge passes)
	BulkCreateMolecules(ms []*Molecule) error
	BulkCreateInteractions(is []*Interaction) error

	// Stats
	MoleculeCount() (int64, error)
	InteractionCount() (int64, error)

	// Lifecycle
	Close() error
}

// copyMolecule returns a deep copy of a molecule.
func copyMolecule(m *Molecule) *Molecule {
	if m == nil {
		return nil
	}
	out := &Molecule{
		ID:     m.ID,
		Kind:   m.Kind,
		IDType: m.IDType,
		Label:  m.Label,
		Taxon:  m.Taxon,
	}
	if m.OriginalNames != nil {
		out.OriginalNames = make(map[string]string, len(m.OriginalNames))
		for k, v := range m.OriginalNames {
			out.OriginalNames[k] = v
		}
	}
	if m.Sources != nil {
		out.Sources = append([]string(nil), m.Sources...)
	}
	if m.Properties != nil {
		out.Properties = make(map[string]any, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = copyPropertyValue(v)
		}
	}
	return out
}

// copyInteraction returns a deep copy of an interaction, including its
// direction ledger.
func copyInteraction(i *Interaction) *Interaction {
	if i == nil {
		return nil
	}
	out := &Interaction{
		ID:    i.ID,
		NodeA: i.NodeA,
		NodeB: i.NodeB,
		Type:  i.Type,
	}
	if i.Sources != nil {
		out.Sources = append([]string(nil), i.Sources...)
	}
	if i.References != nil {
		out.References = append([]string(nil), i.References...)
	}
	if i.RefsBySource != nil {
		out.RefsBySource = make(map[string][]string, len(i.RefsBySource))
		for k, v := range i.RefsBySource {
			out.RefsBySource[k] = append([]string(nil), v...)
		}
	}
	if i.Dirs != nil {
		out.Dirs = i.Dirs.Clone()
	}
	if i.Properties != nil {
		out.Properties = make(map[string]any, len(i.Properties))
		for k, v := range i.Properties {
			out.Properties[k] = copyPropertyValue(v)
		}
	}
	return out
}

// copyPropertyValue deep-copies the property value shapes the integration
// layer stores: scalars, []any, map[string]any and direction ledgers.
func copyPropertyValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyPropertyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = copyPropertyValue(e)
		}
		return out
	case *direction.Ledger:
		return x.Clone()
	}
	return v
}
