package storage

import (
	"fmt"
	"strings"
	"sync"
)

// normalizeKind lowercases a molecule kind for case-insensitive matching.
func normalizeKind(kind string) string {
	return strings.ToLower(kind)
}

// MemoryEngine is a thread-safe in-memory implementation of Engine.
//
// This is the engine the batch integration pipeline runs against: a full
// load is a single in-memory pass, and the result is either exported or
// copied into a persistent engine afterwards.
//
// Characteristics:
//   - Molecule lookup by ID: O(1)
//   - Interaction lookup by pair: O(1) via the pair index
//   - Incident interactions: O(degree)
//   - All reads return deep copies; writes go through Update methods
type MemoryEngine struct {
	mu        sync.RWMutex
	molecules map[NodeID]*Molecule
	edges     map[EdgeID]*Interaction

	// Indexes. byPair can hold several edge IDs for one pair; the
	// consistency pass collapses such accidental multi-edges.
	byKind  map[string]map[NodeID]struct{}
	byPair  map[PairKey]map[EdgeID]struct{}
	edgesOf map[NodeID]map[EdgeID]struct{}

	closed bool
}

// NewMemoryEngine creates an empty in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		molecules: make(map[NodeID]*Molecule),
		edges:     make(map[EdgeID]*Interaction),
		byKind:    make(map[string]map[NodeID]struct{}),
		byPair:    make(map[PairKey]map[EdgeID]struct{}),
		edgesOf:   make(map[NodeID]map[EdgeID]struct{}),
	}
}

// CreateMolecule stores a new molecule. The molecule is deep-copied so the
// caller's value can be mutated afterwards without affecting storage.
func (m *MemoryEngine) CreateMolecule(mol *Molecule) error {
	if mol == nil {
		return ErrInvalidData
	}
	if mol.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, exists := m.molecules[mol.ID]; exists {
		return fmt.Errorf("molecule %s: %w", mol.ID, ErrAlreadyExists)
	}

	m.molecules[mol.ID] = copyMolecule(mol)
	m.indexMoleculeLocked(mol)
	return nil
}

// GetMolecule returns a deep copy of the molecule with the given ID.
func (m *MemoryEngine) GetMolecule(id NodeID) (*Molecule, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	mol, exists := m.molecules[id]
	if !exists {
		return nil, fmt.Errorf("molecule %s: %w", id, ErrNotFound)
	}
	return copyMolecule(mol), nil
}

// HasMolecule reports whether a molecule with the given ID exists.
func (m *MemoryEngine) HasMolecule(id NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false
	}
	_, ok := m.molecules[id]
	return ok
}

// UpdateMolecule replaces an existing molecule.
func (m *MemoryEngine) UpdateMolecule(mol *Molecule) error {
	if mol == nil {
		return ErrInvalidData
	}
	if mol.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	existing, exists := m.molecules[mol.ID]
	if !exists {
		return fmt.Errorf("molecule %s: %w", mol.ID, ErrNotFound)
	}

	m.unindexMoleculeLocked(existing)
	m.molecules[mol.ID] = copyMolecule(mol)
	m.indexMoleculeLocked(mol)
	return nil
}

// DeleteMolecule removes a molecule and every interaction touching it.
func (m *MemoryEngine) DeleteMolecule(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	mol, exists := m.molecules[id]
	if !exists {
		return fmt.Errorf("molecule %s: %w", id, ErrNotFound)
	}

	m.unindexMoleculeLocked(mol)
	for edgeID := range m.edgesOf[id] {
		if edge := m.edges[edgeID]; edge != nil {
			m.unindexInteractionLocked(edge)
			delete(m.edges, edgeID)
		}
	}
	delete(m.edgesOf, id)
	delete(m.molecules, id)
	return nil
}

// CreateInteraction stores a new interaction. Both endpoint molecules must
// already exist.
func (m *MemoryEngine) CreateInteraction(ia *Interaction) error {
	if ia == nil {
		return ErrInvalidData
	}
	if ia.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if _, exists := m.edges[ia.ID]; exists {
		return fmt.Errorf("interaction %s: %w", ia.ID, ErrAlreadyExists)
	}
	if _, ok := m.molecules[ia.NodeA]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeA)
	}
	if _, ok := m.molecules[ia.NodeB]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeB)
	}

	m.edges[ia.ID] = copyInteraction(ia)
	m.indexInteractionLocked(ia)
	return nil
}

// GetInteraction returns a deep copy of the interaction with the given ID.
func (m *MemoryEngine) GetInteraction(id EdgeID) (*Interaction, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	edge, exists := m.edges[id]
	if !exists {
		return nil, fmt.Errorf("interaction %s: %w", id, ErrNotFound)
	}
	return copyInteraction(edge), nil
}

// UpdateInteraction replaces an existing interaction. Endpoints are
// immutable; changing them returns ErrInvalidData.
func (m *MemoryEngine) UpdateInteraction(ia *Interaction) error {
	if ia == nil {
		return ErrInvalidData
	}
	if ia.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	existing, exists := m.edges[ia.ID]
	if !exists {
		return fmt.Errorf("interaction %s: %w", ia.ID, ErrNotFound)
	}
	if existing.Pair() != ia.Pair() {
		return fmt.Errorf("%w: interaction endpoints are immutable", ErrInvalidData)
	}

	m.edges[ia.ID] = copyInteraction(ia)
	return nil
}

// DeleteInteraction removes an interaction.
func (m *MemoryEngine) DeleteInteraction(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	edge, exists := m.edges[id]
	if !exists {
		return fmt.Errorf("interaction %s: %w", id, ErrNotFound)
	}

	m.unindexInteractionLocked(edge)
	delete(m.edges, id)
	return nil
}

// GetInteractionsBetween returns all interactions between the unordered
// pair {a, b}. After a consistency pass this is at most one.
func (m *MemoryEngine) GetInteractionsBetween(a, b NodeID) ([]*Interaction, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := []*Interaction{}
	for edgeID := range m.byPair[NewPairKey(a, b)] {
		if edge := m.edges[edgeID]; edge != nil {
			out = append(out, copyInteraction(edge))
		}
	}
	return out, nil
}

// GetInteractionsOf returns every interaction incident to the molecule.
func (m *MemoryEngine) GetInteractionsOf(id NodeID) ([]*Interaction, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := []*Interaction{}
	for edgeID := range m.edgesOf[id] {
		if edge := m.edges[edgeID]; edge != nil {
			out = append(out, copyInteraction(edge))
		}
	}
	return out, nil
}

// GetMoleculesByKind returns all molecules of the given kind
// (case-insensitive).
func (m *MemoryEngine) GetMoleculesByKind(kind string) ([]*Molecule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	ids := m.byKind[normalizeKind(kind)]
	out := make([]*Molecule, 0, len(ids))
	for id := range ids {
		if mol := m.molecules[id]; mol != nil {
			out = append(out, copyMolecule(mol))
		}
	}
	return out, nil
}

// AllMolecules returns deep copies of every molecule.
func (m *MemoryEngine) AllMolecules() ([]*Molecule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Molecule, 0, len(m.molecules))
	for _, mol := range m.molecules {
		out = append(out, copyMolecule(mol))
	}
	return out, nil
}

// AllInteractions returns deep copies of every interaction.
func (m *MemoryEngine) AllInteractions() ([]*Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*Interaction, 0, len(m.edges))
	for _, edge := range m.edges {
		out = append(out, copyInteraction(edge))
	}
	return out, nil
}

// GetDegree returns the number of interactions incident to the molecule.
func (m *MemoryEngine) GetDegree(id NodeID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0
	}
	return len(m.edgesOf[id])
}

// BulkCreateMolecules creates many molecules under a single lock
// acquisition. All molecules are validated before any is inserted, so the
// operation is all-or-nothing. The batch loader uses this for its node pass
// to avoid per-insert reindexing.
func (m *MemoryEngine) BulkCreateMolecules(mols []*Molecule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	for _, mol := range mols {
		if mol == nil {
			return ErrInvalidData
		}
		if mol.ID == "" {
			return ErrInvalidID
		}
		if _, exists := m.molecules[mol.ID]; exists {
			return fmt.Errorf("molecule %s: %w", mol.ID, ErrAlreadyExists)
		}
	}
	for _, mol := range mols {
		m.molecules[mol.ID] = copyMolecule(mol)
		m.indexMoleculeLocked(mol)
	}
	return nil
}

// BulkCreateInteractions creates many interactions under a single lock
// acquisition, validated before insertion.
func (m *MemoryEngine) BulkCreateInteractions(ias []*Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	for _, ia := range ias {
		if ia == nil {
			return ErrInvalidData
		}
		if ia.ID == "" {
			return ErrInvalidID
		}
		if _, exists := m.edges[ia.ID]; exists {
			return fmt.Errorf("interaction %s: %w", ia.ID, ErrAlreadyExists)
		}
		if _, ok := m.molecules[ia.NodeA]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeA)
		}
		if _, ok := m.molecules[ia.NodeB]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeB)
		}
	}
	for _, ia := range ias {
		m.edges[ia.ID] = copyInteraction(ia)
		m.indexInteractionLocked(ia)
	}
	return nil
}

// MoleculeCount returns the number of molecules.
func (m *MemoryEngine) MoleculeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.molecules)), nil
}

// InteractionCount returns the number of interactions.
func (m *MemoryEngine) InteractionCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// Close releases all memory. Further operations return ErrStorageClosed.
// Close is idempotent.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.molecules = nil
	m.edges = nil
	m.byKind = nil
	m.byPair = nil
	m.edgesOf = nil
	return nil
}

// indexMoleculeLocked adds a molecule to the kind index. Caller holds mu.
func (m *MemoryEngine) indexMoleculeLocked(mol *Molecule) {
	kind := normalizeKind(mol.Kind)
	if m.byKind[kind] == nil {
		m.byKind[kind] = make(map[NodeID]struct{})
	}
	m.byKind[kind][mol.ID] = struct{}{}
}

// unindexMoleculeLocked removes a molecule from the kind index.
func (m *MemoryEngine) unindexMoleculeLocked(mol *Molecule) {
	kind := normalizeKind(mol.Kind)
	if m.byKind[kind] != nil {
		delete(m.byKind[kind], mol.ID)
	}
}

// indexInteractionLocked adds an interaction to the pair and incidence
// indexes. Caller holds mu.
func (m *MemoryEngine) indexInteractionLocked(ia *Interaction) {
	pair := ia.Pair()
	if m.byPair[pair] == nil {
		m.byPair[pair] = make(map[EdgeID]struct{})
	}
	m.byPair[pair][ia.ID] = struct{}{}

	for _, node := range []NodeID{ia.NodeA, ia.NodeB} {
		if m.edgesOf[node] == nil {
			m.edgesOf[node] = make(map[EdgeID]struct{})
		}
		m.edgesOf[node][ia.ID] = struct{}{}
		if pair.IsLoop() {
			break
		}
	}
}

// unindexInteractionLocked removes an interaction from the indexes.
func (m *MemoryEngine) unindexInteractionLocked(ia *Interaction) {
	pair := ia.Pair()
	if m.byPair[pair] != nil {
		delete(m.byPair[pair], ia.ID)
		if len(m.byPair[pair]) == 0 {
			delete(m.byPair, pair)
		}
	}
	for _, node := range []NodeID{ia.NodeA, ia.NodeB} {
		if m.edgesOf[node] != nil {
			delete(m.edgesOf[node], ia.ID)
			if len(m.edgesOf[node]) == 0 {
				delete(m.edgesOf, node)
			}
		}
		if pair.IsLoop() {
			break
		}
	}
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)
