package integrate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkovacs/molnet/pkg/attrs"
	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/source"
	"github.com/tkovacs/molnet/pkg/storage"
)

// LoadStats reports what happened during one Load call.
type LoadStats struct {
	SessionID     string
	RecordsRead   int
	RecordsMapped int
	Unmapped      int
	LoopsSkipped  int
	NodesCreated  int
	EdgesCreated  int
	EdgeFailures  int
	TypeConflicts int
}

// mappedPair is one record translated to canonical identifiers. A single
// input record fans out to one mappedPair per (candidateA, candidateB)
// combination when a name resolves ambiguously.
type mappedPair struct {
	identA NodeIdentity
	identB NodeIdentity
	rec    *source.Record
}

// Load integrates a full standardized record list in three passes:
//
//  1. Node pass: resolve every endpoint, collect the genuinely new
//     canonical identities, create them in one bulk operation.
//  2. Edge pass: create all genuinely new pair edges in one bulk
//     operation, with empty attribute state.
//  3. Attribute pass: for every mapped pair, upsert both endpoint nodes
//     and the edge, folding the record's evidence into the now-guaranteed
//     existing structures.
//
// Bulk creation up front avoids per-insert index churn; the attribute
// pass never creates edges, so a creation request there is recorded as a
// failure and skipped.
//
// Records whose names resolve to nothing are attached to the reserved
// "unmapped" placeholder node and purged later by the consistency pass.
// A missing mapping table aborts the whole call with resolve.ErrNoTable,
// since none of the source's records could be translated.
//
// Load is repeatable: calling it again with more sources accumulates
// evidence into the same network.
func (b *Builder) Load(records []source.Record) (LoadStats, error) {
	stats := LoadStats{
		SessionID:   uuid.New().String(),
		RecordsRead: len(records),
	}
	logger := b.logger.With(zap.String("session", stats.SessionID))
	logger.Info("starting load", zap.Int("records", len(records)))

	pairs, err := b.mapRecords(records, &stats)
	if err != nil {
		return stats, err
	}

	// Pass 1: bulk-create new nodes.
	newMols := make([]*storage.Molecule, 0)
	seen := make(map[storage.NodeID]struct{})
	for _, p := range pairs {
		for _, ident := range []NodeIdentity{p.identA, p.identB} {
			if _, dup := seen[ident.ID]; dup {
				continue
			}
			seen[ident.ID] = struct{}{}
			if !b.engine.HasMolecule(ident.ID) {
				newMols = append(newMols, b.newMolecule(ident))
			}
		}
	}
	if err := b.engine.BulkCreateMolecules(newMols); err != nil {
		return stats, fmt.Errorf("bulk creating molecules: %w", err)
	}
	stats.NodesCreated = len(newMols)

	// Pass 2: bulk-create new edges with empty attribute state.
	newEdges := make([]*storage.Interaction, 0)
	seenPairs := make(map[storage.PairKey]struct{})
	for _, p := range pairs {
		pair := storage.NewPairKey(p.identA.ID, p.identB.ID)
		if _, dup := seenPairs[pair]; dup {
			continue
		}
		seenPairs[pair] = struct{}{}
		if _, err := b.engine.GetInteraction(pair.InteractionID()); errors.Is(err, storage.ErrNotFound) {
			newEdges = append(newEdges, newInteraction(pair))
		} else if err != nil {
			return stats, fmt.Errorf("checking interaction %s: %w", pair.InteractionID(), err)
		}
	}
	if err := b.engine.BulkCreateInteractions(newEdges); err != nil {
		return stats, fmt.Errorf("bulk creating interactions: %w", err)
	}
	stats.EdgesCreated = len(newEdges)

	// Pass 3: fold every record's attributes into nodes and edges.
	for _, p := range pairs {
		rec := p.rec
		conflicts, err := b.UpsertNode(p.identA, rec.Source, rec.ExtraNodeA)
		if err != nil {
			return stats, err
		}
		stats.TypeConflicts += conflicts

		conflicts, err = b.UpsertNode(p.identB, rec.Source, rec.ExtraNodeB)
		if err != nil {
			return stats, err
		}
		stats.TypeConflicts += conflicts

		conflicts, err = b.UpsertEdge(p.identA.ID, p.identB.ID, EdgeContribution{
			Source:          rec.Source,
			IsDirected:      rec.IsDirected,
			References:      rec.References,
			IsStimulation:   rec.IsStimulation,
			IsInhibition:    rec.IsInhibition,
			InteractionType: rec.InteractionType,
			Extra:           rec.ExtraEdge,
		}, false)
		if errors.Is(err, ErrEdgeCreationNotPermitted) {
			stats.EdgeFailures++
			continue
		}
		if err != nil {
			return stats, err
		}
		stats.TypeConflicts += conflicts
	}

	if err := b.NormalizeAttributes(); err != nil {
		return stats, err
	}

	logger.Info("load finished",
		zap.Int("mapped", stats.RecordsMapped),
		zap.Int("unmapped", stats.Unmapped),
		zap.Int("nodes_created", stats.NodesCreated),
		zap.Int("edges_created", stats.EdgesCreated),
		zap.Int("edge_failures", stats.EdgeFailures),
		zap.Int("type_conflicts", stats.TypeConflicts))
	return stats, nil
}

// mapRecords resolves every record's endpoint names to canonical
// identities, fanning out ambiguous resolutions to all combinations.
func (b *Builder) mapRecords(records []source.Record, stats *LoadStats) ([]mappedPair, error) {
	pairs := make([]mappedPair, 0, len(records))
	for i := range records {
		rec := &records[i]

		identsA, err := b.resolveEndpoint(rec.NameA, rec.NameTypeA, rec.KindA, rec.TaxonA)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", rec.Source, err)
		}
		identsB, err := b.resolveEndpoint(rec.NameB, rec.NameTypeB, rec.KindB, rec.TaxonB)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", rec.Source, err)
		}

		unmapped := len(identsA) == 1 && string(identsA[0].ID) == resolve.Unmapped ||
			len(identsB) == 1 && string(identsB[0].ID) == resolve.Unmapped
		if unmapped {
			stats.Unmapped++
		}

		mapped := false
		for _, ia := range identsA {
			for _, ib := range identsB {
				if ia.ID == ib.ID && !b.allowLoops {
					stats.LoopsSkipped++
					continue
				}
				pairs = append(pairs, mappedPair{identA: ia, identB: ib, rec: rec})
				mapped = true
			}
		}
		if mapped && !unmapped {
			stats.RecordsMapped++
		}
	}
	return pairs, nil
}

// resolveEndpoint maps one name to its canonical identities. A name that
// resolves to nothing yields the reserved unmapped placeholder so the
// record still lands in the graph and stays countable.
func (b *Builder) resolveEndpoint(name, nameType, kind string, taxon int) ([]NodeIdentity, error) {
	toType := b.defaultIDType(kind, nameType)
	ids, err := b.mapper.Resolve(name, nameType, toType)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []NodeIdentity{{
			ID:           resolve.Unmapped,
			Kind:         kind,
			IDType:       toType,
			Taxon:        taxon,
			OriginalName: name,
			OriginalType: nameType,
		}}, nil
	}

	idents := make([]NodeIdentity, 0, len(ids))
	for _, id := range ids {
		idents = append(idents, NodeIdentity{
			ID:           storage.NodeID(id),
			Kind:         kind,
			IDType:       toType,
			Taxon:        taxon,
			OriginalName: name,
			OriginalType: nameType,
		})
	}
	return idents, nil
}

// NormalizeAttributes enforces network-wide attribute typing: once any
// node or edge holds a collection for an attribute, every value of that
// attribute becomes a collection, and missing values are backfilled with
// the declared type's zero value.
func (b *Builder) NormalizeAttributes() error {
	mols, err := b.engine.AllMolecules()
	if err != nil {
		return fmt.Errorf("normalizing node attributes: %w", err)
	}
	for _, mol := range mols {
		if mol.Properties == nil && len(b.nodeAttrKinds) > 0 {
			mol.Properties = make(map[string]any)
		}
		if normalizeProps(mol.Properties, b.nodeAttrKinds) {
			if err := b.engine.UpdateMolecule(mol); err != nil {
				return fmt.Errorf("normalizing molecule %s: %w", mol.ID, err)
			}
		}
	}

	ias, err := b.engine.AllInteractions()
	if err != nil {
		return fmt.Errorf("normalizing edge attributes: %w", err)
	}
	for _, ia := range ias {
		if ia.Properties == nil && len(b.edgeAttrKinds) > 0 {
			ia.Properties = make(map[string]any)
		}
		if normalizeProps(ia.Properties, b.edgeAttrKinds) {
			if err := b.engine.UpdateInteraction(ia); err != nil {
				return fmt.Errorf("normalizing interaction %s: %w", ia.ID, err)
			}
		}
	}
	return nil
}

// normalizeProps coerces one property map to the declared attribute
// kinds. Reports whether anything changed.
func normalizeProps(props map[string]any, kinds map[string]attrs.Kind) bool {
	changed := false
	for name, kind := range kinds {
		raw, present := props[name]
		if !present {
			props[name] = attrs.Zero(kind).ToAny()
			changed = true
			continue
		}
		val := attrs.FromAny(raw)
		if val.Kind() == kind {
			continue
		}
		if kind == attrs.Collection {
			if val.IsAbsent() {
				props[name] = attrs.Zero(kind).ToAny()
			} else {
				props[name] = attrs.CollectionOf(val).ToAny()
			}
			changed = true
		}
	}
	return changed
}
