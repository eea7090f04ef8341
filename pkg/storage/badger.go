package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB. Each record type gets its own byte prefix so
// iterators can scan one family without touching the others.
const (
	prefixMolecule    = byte(0x01) // molecule:nodeID -> Molecule JSON
	prefixInteraction = byte(0x02) // interaction:edgeID -> Interaction JSON
	prefixKindIndex   = byte(0x03) // kind:kindName:nodeID -> []byte{}
	prefixPairIndex   = byte(0x04) // pair:nodeA:nodeB:edgeID -> []byte{}
	prefixIncidence   = byte(0x05) // incident:nodeID:edgeID -> []byte{}
)

const keySep = byte(0x00)

// BadgerEngine is a persistent Engine backed by BadgerDB.
//
// The integration pipeline normally runs against a MemoryEngine and only
// persists the finished network, but BadgerEngine implements the same
// interface so a build can run directly against disk when the network is
// too large for RAM, or when incremental loads across process restarts
// are needed.
//
// All operations are ACID transactions. Safe for concurrent use.
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging. If nil, Badger logging is
	// silenced; the integration pipeline logs through its own logger.
	Logger badger.Logger
}

// NewBadgerEngine creates a persistent storage engine with default settings.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/molnet")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions creates a storage engine with custom settings.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
		badgerOpts.Dir = ""
		badgerOpts.ValueDir = ""
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerEngine{db: db}, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB, mainly for tests.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// Key encoding helpers.

func moleculeKey(id NodeID) []byte {
	return append([]byte{prefixMolecule}, []byte(id)...)
}

func interactionKey(id EdgeID) []byte {
	return append([]byte{prefixInteraction}, []byte(id)...)
}

// kindIndexKey builds prefix + kind (lowercase) + 0x00 + nodeID. Kinds are
// normalized to lowercase for case-insensitive matching.
func kindIndexKey(kind string, id NodeID) []byte {
	k := strings.ToLower(kind)
	key := make([]byte, 0, 1+len(k)+1+len(id))
	key = append(key, prefixKindIndex)
	key = append(key, []byte(k)...)
	key = append(key, keySep)
	key = append(key, []byte(id)...)
	return key
}

func kindIndexPrefix(kind string) []byte {
	k := strings.ToLower(kind)
	key := make([]byte, 0, 1+len(k)+1)
	key = append(key, prefixKindIndex)
	key = append(key, []byte(k)...)
	key = append(key, keySep)
	return key
}

// pairIndexKey builds prefix + nodeA + 0x00 + nodeB + 0x00 + edgeID where
// (nodeA, nodeB) is the canonical sorted pair.
func pairIndexKey(pair PairKey, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(pair.A)+1+len(pair.B)+1+len(edgeID))
	key = append(key, prefixPairIndex)
	key = append(key, []byte(pair.A)...)
	key = append(key, keySep)
	key = append(key, []byte(pair.B)...)
	key = append(key, keySep)
	key = append(key, []byte(edgeID)...)
	return key
}

func pairIndexPrefix(pair PairKey) []byte {
	key := make([]byte, 0, 1+len(pair.A)+1+len(pair.B)+1)
	key = append(key, prefixPairIndex)
	key = append(key, []byte(pair.A)...)
	key = append(key, keySep)
	key = append(key, []byte(pair.B)...)
	key = append(key, keySep)
	return key
}

func incidenceKey(id NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(id)+1+len(edgeID))
	key = append(key, prefixIncidence)
	key = append(key, []byte(id)...)
	key = append(key, keySep)
	key = append(key, []byte(edgeID)...)
	return key
}

func incidencePrefix(id NodeID) []byte {
	key := make([]byte, 0, 1+len(id)+1)
	key = append(key, prefixIncidence)
	key = append(key, []byte(id)...)
	key = append(key, keySep)
	return key
}

// tailAfterPrefix returns the key bytes following the given prefix.
func tailAfterPrefix(key, prefix []byte) []byte {
	if len(key) <= len(prefix) {
		return nil
	}
	return key[len(prefix):]
}

func serializeMolecule(mol *Molecule) ([]byte, error) {
	data, err := json.Marshal(mol)
	if err != nil {
		return nil, fmt.Errorf("serializing molecule %s: %w", mol.ID, err)
	}
	return data, nil
}

func deserializeMolecule(data []byte) (*Molecule, error) {
	var mol Molecule
	if err := json.Unmarshal(data, &mol); err != nil {
		return nil, fmt.Errorf("deserializing molecule: %w", err)
	}
	return &mol, nil
}

func serializeInteraction(ia *Interaction) ([]byte, error) {
	data, err := json.Marshal(ia)
	if err != nil {
		return nil, fmt.Errorf("serializing interaction %s: %w", ia.ID, err)
	}
	return data, nil
}

func deserializeInteraction(data []byte) (*Interaction, error) {
	var ia Interaction
	if err := json.Unmarshal(data, &ia); err != nil {
		return nil, fmt.Errorf("deserializing interaction: %w", err)
	}
	return &ia, nil
}

func (b *BadgerEngine) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// CreateMolecule stores a new molecule.
func (b *BadgerEngine) CreateMolecule(mol *Molecule) error {
	if mol == nil {
		return ErrInvalidData
	}
	if mol.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	data, err := serializeMolecule(mol)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := moleculeKey(mol.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("molecule %s: %w", mol.ID, ErrAlreadyExists)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(kindIndexKey(mol.Kind, mol.ID), []byte{})
	})
}

// GetMolecule retrieves a molecule by ID.
func (b *BadgerEngine) GetMolecule(id NodeID) (*Molecule, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	var mol *Molecule
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(moleculeKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("molecule %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			mol, err = deserializeMolecule(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return mol, nil
}

// HasMolecule reports whether a molecule exists.
func (b *BadgerEngine) HasMolecule(id NodeID) bool {
	if id == "" || b.checkClosed() != nil {
		return false
	}
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(moleculeKey(id))
		return err
	})
	return err == nil
}

// UpdateMolecule replaces an existing molecule, maintaining the kind index.
func (b *BadgerEngine) UpdateMolecule(mol *Molecule) error {
	if mol == nil {
		return ErrInvalidData
	}
	if mol.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	data, err := serializeMolecule(mol)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := moleculeKey(mol.ID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("molecule %s: %w", mol.ID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		var existing *Molecule
		if err := item.Value(func(val []byte) error {
			existing, err = deserializeMolecule(val)
			return err
		}); err != nil {
			return err
		}

		if existing.Kind != mol.Kind {
			if err := txn.Delete(kindIndexKey(existing.Kind, mol.ID)); err != nil {
				return err
			}
			if err := txn.Set(kindIndexKey(mol.Kind, mol.ID), []byte{}); err != nil {
				return err
			}
		}
		return txn.Set(key, data)
	})
}

// DeleteMolecule removes a molecule and all interactions touching it.
func (b *BadgerEngine) DeleteMolecule(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := moleculeKey(id)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("molecule %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		var mol *Molecule
		if err := item.Value(func(val []byte) error {
			mol, err = deserializeMolecule(val)
			return err
		}); err != nil {
			return err
		}

		// Incident interactions first, via the incidence index.
		edgeIDs, err := edgeIDsWithPrefix(txn, incidencePrefix(id))
		if err != nil {
			return err
		}
		for _, edgeID := range edgeIDs {
			if err := deleteInteractionInTxn(txn, edgeID); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}

		if err := txn.Delete(kindIndexKey(mol.Kind, id)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// edgeIDsWithPrefix collects edge IDs from an index key family.
func edgeIDsWithPrefix(txn *badger.Txn, prefix []byte) ([]EdgeID, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []EdgeID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		tail := tailAfterPrefix(it.Item().Key(), prefix)
		if len(tail) > 0 {
			out = append(out, EdgeID(tail))
		}
	}
	return out, nil
}

// deleteInteractionInTxn removes an interaction and its index entries.
func deleteInteractionInTxn(txn *badger.Txn, id EdgeID) error {
	key := interactionKey(id)
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	var ia *Interaction
	if err := item.Value(func(val []byte) error {
		ia, err = deserializeInteraction(val)
		return err
	}); err != nil {
		return err
	}

	if err := txn.Delete(pairIndexKey(ia.Pair(), id)); err != nil {
		return err
	}
	if err := txn.Delete(incidenceKey(ia.NodeA, id)); err != nil {
		return err
	}
	if ia.NodeA != ia.NodeB {
		if err := txn.Delete(incidenceKey(ia.NodeB, id)); err != nil {
			return err
		}
	}
	return txn.Delete(key)
}

// CreateInteraction stores a new interaction. Both endpoints must exist.
func (b *BadgerEngine) CreateInteraction(ia *Interaction) error {
	if ia == nil {
		return ErrInvalidData
	}
	if ia.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	data, err := serializeInteraction(ia)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := interactionKey(ia.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("interaction %s: %w", ia.ID, ErrAlreadyExists)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if _, err := txn.Get(moleculeKey(ia.NodeA)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeA)
		} else if err != nil {
			return err
		}
		if _, err := txn.Get(moleculeKey(ia.NodeB)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrInvalidEdge, ia.NodeB)
		} else if err != nil {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(pairIndexKey(ia.Pair(), ia.ID), []byte{}); err != nil {
			return err
		}
		if err := txn.Set(incidenceKey(ia.NodeA, ia.ID), []byte{}); err != nil {
			return err
		}
		if ia.NodeA != ia.NodeB {
			if err := txn.Set(incidenceKey(ia.NodeB, ia.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetInteraction retrieves an interaction by ID.
func (b *BadgerEngine) GetInteraction(id EdgeID) (*Interaction, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	var ia *Interaction
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(interactionKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("interaction %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ia, err = deserializeInteraction(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return ia, nil
}

// UpdateInteraction replaces an existing interaction. Endpoints are
// immutable.
func (b *BadgerEngine) UpdateInteraction(ia *Interaction) error {
	if ia == nil {
		return ErrInvalidData
	}
	if ia.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	data, err := serializeInteraction(ia)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := interactionKey(ia.ID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("interaction %s: %w", ia.ID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		var existing *Interaction
		if err := item.Value(func(val []byte) error {
			existing, err = deserializeInteraction(val)
			return err
		}); err != nil {
			return err
		}
		if existing.Pair() != ia.Pair() {
			return fmt.Errorf("%w: interaction endpoints are immutable", ErrInvalidData)
		}
		return txn.Set(key, data)
	})
}

// DeleteInteraction removes an interaction.
func (b *BadgerEngine) DeleteInteraction(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		err := deleteInteractionInTxn(txn, id)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("interaction %s: %w", id, ErrNotFound)
		}
		return err
	})
}

// GetInteractionsBetween returns all interactions between the unordered
// pair {a, b}.
func (b *BadgerEngine) GetInteractionsBetween(a, bID NodeID) ([]*Interaction, error) {
	if a == "" || bID == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out := []*Interaction{}
	err := b.db.View(func(txn *badger.Txn) error {
		edgeIDs, err := edgeIDsWithPrefix(txn, pairIndexPrefix(NewPairKey(a, bID)))
		if err != nil {
			return err
		}
		for _, edgeID := range edgeIDs {
			ia, err := getInteractionInTxn(txn, edgeID)
			if err != nil {
				return err
			}
			out = append(out, ia)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetInteractionsOf returns every interaction incident to the molecule.
func (b *BadgerEngine) GetInteractionsOf(id NodeID) ([]*Interaction, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out := []*Interaction{}
	err := b.db.View(func(txn *badger.Txn) error {
		edgeIDs, err := edgeIDsWithPrefix(txn, incidencePrefix(id))
		if err != nil {
			return err
		}
		for _, edgeID := range edgeIDs {
			ia, err := getInteractionInTxn(txn, edgeID)
			if err != nil {
				return err
			}
			out = append(out, ia)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getInteractionInTxn(txn *badger.Txn, id EdgeID) (*Interaction, error) {
	item, err := txn.Get(interactionKey(id))
	if err != nil {
		return nil, err
	}
	var ia *Interaction
	err = item.Value(func(val []byte) error {
		ia, err = deserializeInteraction(val)
		return err
	})
	return ia, err
}

// GetMoleculesByKind returns all molecules of the given kind
// (case-insensitive).
func (b *BadgerEngine) GetMoleculesByKind(kind string) ([]*Molecule, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out := []*Molecule{}
	prefix := kindIndexPrefix(kind)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			tail := tailAfterPrefix(it.Item().Key(), prefix)
			if len(tail) == 0 {
				continue
			}
			item, err := txn.Get(moleculeKey(NodeID(tail)))
			if err != nil {
				return err
			}
			var mol *Molecule
			if err := item.Value(func(val []byte) error {
				mol, err = deserializeMolecule(val)
				return err
			}); err != nil {
				return err
			}
			out = append(out, mol)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AllMolecules returns every stored molecule.
func (b *BadgerEngine) AllMolecules() ([]*Molecule, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out := []*Molecule{}
	prefix := []byte{prefixMolecule}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var mol *Molecule
			if err := it.Item().Value(func(val []byte) error {
				var err error
				mol, err = deserializeMolecule(val)
				return err
			}); err != nil {
				return err
			}
			out = append(out, mol)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AllInteractions returns every stored interaction.
func (b *BadgerEngine) AllInteractions() ([]*Interaction, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out := []*Interaction{}
	prefix := []byte{prefixInteraction}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ia *Interaction
			if err := it.Item().Value(func(val []byte) error {
				var err error
				ia, err = deserializeInteraction(val)
				return err
			}); err != nil {
				return err
			}
			out = append(out, ia)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDegree returns the number of interactions incident to the molecule.
func (b *BadgerEngine) GetDegree(id NodeID) int {
	if id == "" || b.checkClosed() != nil {
		return 0
	}

	count := 0
	prefix := incidencePrefix(id)
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count
}

// BulkCreateMolecules creates many molecules. Not atomic across Badger
// transaction size limits; each molecule is created individually.
func (b *BadgerEngine) BulkCreateMolecules(mols []*Molecule) error {
	for _, mol := range mols {
		if err := b.CreateMolecule(mol); err != nil {
			return err
		}
	}
	return nil
}

// BulkCreateInteractions creates many interactions.
func (b *BadgerEngine) BulkCreateInteractions(ias []*Interaction) error {
	for _, ia := range ias {
		if err := b.CreateInteraction(ia); err != nil {
			return err
		}
	}
	return nil
}

// MoleculeCount returns the number of stored molecules.
func (b *BadgerEngine) MoleculeCount() (int64, error) {
	return b.countPrefix([]byte{prefixMolecule})
}

// InteractionCount returns the number of stored interactions.
func (b *BadgerEngine) InteractionCount() (int64, error) {
	return b.countPrefix([]byte{prefixInteraction})
}

func (b *BadgerEngine) countPrefix(prefix []byte) (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close flushes and closes the database. Idempotent.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Verify BadgerEngine implements Engine
var _ Engine = (*BadgerEngine)(nil)
