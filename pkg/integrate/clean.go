package integrate

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tkovacs/molnet/pkg/direction"
	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/storage"
)

// CleanStats reports what the consistency pass removed.
type CleanStats struct {
	DuplicateEdges int
	LoopsRemoved   int
	UnmappedNodes  int
	TaxonFiltered  int
	UnknownNodes   int
	OrphansPruned  int
}

// Clean runs the full consistency pass, always in this order:
//
//	Simplify -> DeleteUnmapped -> DeleteByTaxon -> DeleteUnknown -> PruneOrphans
//
// Taxon filtering runs only when allowed taxa are configured; reference
// list validation only when lists are registered. Clean is idempotent: a
// second run on an already clean network removes nothing.
func (b *Builder) Clean() (CleanStats, error) {
	var stats CleanStats

	dup, loops, err := b.Simplify()
	if err != nil {
		return stats, err
	}
	stats.DuplicateEdges, stats.LoopsRemoved = dup, loops

	stats.UnmappedNodes, err = b.DeleteUnmapped()
	if err != nil {
		return stats, err
	}

	if len(b.allowedTaxa) > 0 {
		stats.TaxonFiltered, err = b.DeleteByTaxon(b.allowedTaxa)
		if err != nil {
			return stats, err
		}
	}
	if b.reflists != nil && b.reflists.Len() > 0 {
		stats.UnknownNodes, err = b.DeleteUnknown()
		if err != nil {
			return stats, err
		}
	}

	stats.OrphansPruned, err = b.PruneOrphans()
	if err != nil {
		return stats, err
	}

	b.logger.Info("consistency pass finished",
		zap.Int("duplicate_edges", stats.DuplicateEdges),
		zap.Int("loops_removed", stats.LoopsRemoved),
		zap.Int("unmapped_nodes", stats.UnmappedNodes),
		zap.Int("taxon_filtered", stats.TaxonFiltered),
		zap.Int("unknown_nodes", stats.UnknownNodes),
		zap.Int("orphans_pruned", stats.OrphansPruned))
	return stats, nil
}

// Simplify collapses accidental multi-edges into one edge per pair by
// merging their evidence, and removes self-loops unless loops are
// permitted. Returns the number of duplicates merged and loops removed.
func (b *Builder) Simplify() (duplicates, loops int, err error) {
	ias, err := b.engine.AllInteractions()
	if err != nil {
		return 0, 0, fmt.Errorf("simplify: %w", err)
	}

	byPair := make(map[storage.PairKey][]*storage.Interaction)
	for _, ia := range ias {
		pair := ia.Pair()
		if pair.IsLoop() && !b.allowLoops {
			if err := b.engine.DeleteInteraction(ia.ID); err != nil {
				return duplicates, loops, fmt.Errorf("removing loop %s: %w", ia.ID, err)
			}
			loops++
			continue
		}
		byPair[pair] = append(byPair[pair], ia)
	}

	for _, group := range byPair {
		if len(group) < 2 {
			continue
		}
		// Deterministic merge order regardless of map iteration.
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		keep := group[0]
		for _, extra := range group[1:] {
			if err := b.mergeInteractions(keep, extra); err != nil {
				return duplicates, loops, err
			}
			if err := b.engine.DeleteInteraction(extra.ID); err != nil {
				return duplicates, loops, fmt.Errorf("removing duplicate %s: %w", extra.ID, err)
			}
			duplicates++
		}
		if err := b.engine.UpdateInteraction(keep); err != nil {
			return duplicates, loops, fmt.Errorf("updating merged edge %s: %w", keep.ID, err)
		}
	}
	return duplicates, loops, nil
}

// mergeInteractions folds src's evidence into dst. Both must reference
// the same pair.
func (b *Builder) mergeInteractions(dst, src *storage.Interaction) error {
	dst.Sources = appendUniqueAll(dst.Sources, src.Sources)
	dst.References = appendUniqueAll(dst.References, src.References)
	if dst.RefsBySource == nil {
		dst.RefsBySource = make(map[string][]string)
	}
	for srcName, refs := range src.RefsBySource {
		dst.RefsBySource[srcName] = appendUniqueAll(dst.RefsBySource[srcName], refs)
	}
	dst.Type = mergeInteractionType(dst.Type, src.Type)

	if src.Dirs != nil {
		if dst.Dirs == nil {
			dst.Dirs = src.Dirs.Clone()
		} else if err := dst.Dirs.Merge(src.Dirs); err != nil {
			return fmt.Errorf("merging direction ledgers of %s: %w", dst.ID, err)
		}
	}

	if dst.Properties == nil {
		dst.Properties = make(map[string]any)
	}
	b.foldAttrs(dst.Properties, src.Properties, b.edgeAttrKinds,
		zap.String("interaction", string(dst.ID)))
	return nil
}

// DeleteUnmapped removes the reserved placeholder node that collects
// unresolvable names, along with every edge touching it. Returns the
// number of nodes removed (0 or 1).
func (b *Builder) DeleteUnmapped() (int, error) {
	if !b.engine.HasMolecule(resolve.Unmapped) {
		return 0, nil
	}
	if err := b.engine.DeleteMolecule(resolve.Unmapped); err != nil {
		return 0, fmt.Errorf("deleting unmapped placeholder: %w", err)
	}
	return 1, nil
}

// DeleteByTaxon removes every node whose organism is not in the allowed
// set. Returns the number of nodes removed.
func (b *Builder) DeleteByTaxon(allowed map[int]struct{}) (int, error) {
	mols, err := b.engine.AllMolecules()
	if err != nil {
		return 0, fmt.Errorf("taxon filter: %w", err)
	}

	removed := 0
	for _, mol := range mols {
		if _, ok := allowed[mol.Taxon]; ok {
			continue
		}
		if err := b.engine.DeleteMolecule(mol.ID); err != nil {
			return removed, fmt.Errorf("removing foreign-taxon node %s: %w", mol.ID, err)
		}
		removed++
	}
	return removed, nil
}

// DeleteUnknown removes every node whose identifier is absent from the
// reference list of its kind, identifier namespace and organism. Only
// kinds with at least one registered list are validated; a mixed network
// keeps its other kinds untouched. Within a validated kind, coverage is
// all-or-nothing: every (idType, taxon) combination present must have a
// list, checked before anything is deleted, so a missing list can never
// cause silent under-filtering.
func (b *Builder) DeleteUnknown() (int, error) {
	mols, err := b.engine.AllMolecules()
	if err != nil {
		return 0, fmt.Errorf("reference validation: %w", err)
	}

	// Validate list coverage first; the graph stays untouched on error.
	for _, mol := range mols {
		if !b.reflists.HasKind(mol.Kind) {
			continue
		}
		if _, err := b.reflists.Get(mol.Kind, mol.IDType, mol.Taxon); err != nil {
			return 0, fmt.Errorf("reference validation: %w", err)
		}
	}

	removed := 0
	for _, mol := range mols {
		if !b.reflists.HasKind(mol.Kind) {
			continue
		}
		list, err := b.reflists.Get(mol.Kind, mol.IDType, mol.Taxon)
		if err != nil {
			return removed, fmt.Errorf("reference validation: %w", err)
		}
		if list.Contains(string(mol.ID)) {
			continue
		}
		if err := b.engine.DeleteMolecule(mol.ID); err != nil {
			return removed, fmt.Errorf("removing unknown node %s: %w", mol.ID, err)
		}
		removed++
	}
	return removed, nil
}

// PruneOrphans removes every node with zero interactions. Returns the
// number of nodes removed.
func (b *Builder) PruneOrphans() (int, error) {
	mols, err := b.engine.AllMolecules()
	if err != nil {
		return 0, fmt.Errorf("pruning orphans: %w", err)
	}

	removed := 0
	for _, mol := range mols {
		if b.engine.GetDegree(mol.ID) > 0 {
			continue
		}
		if err := b.engine.DeleteMolecule(mol.ID); err != nil {
			return removed, fmt.Errorf("removing orphan %s: %w", mol.ID, err)
		}
		removed++
	}
	return removed, nil
}

// RemoveSource withdraws one source's contribution: its label disappears
// from every node and edge, edges whose only evidence it was are deleted,
// and the direction ledgers drop its claims. Nodes left without edges are
// pruned.
func (b *Builder) RemoveSource(name string) error {
	ias, err := b.engine.AllInteractions()
	if err != nil {
		return fmt.Errorf("removing source %s: %w", name, err)
	}

	for _, ia := range ias {
		if !containsString(ia.Sources, name) {
			continue
		}
		ia.Sources = removeString(ia.Sources, name)
		delete(ia.RefsBySource, name)

		if len(ia.Sources) == 0 {
			if err := b.engine.DeleteInteraction(ia.ID); err != nil {
				return fmt.Errorf("removing edge %s: %w", ia.ID, err)
			}
			continue
		}

		if ia.Dirs != nil {
			for _, key := range []direction.Key{ia.Dirs.Straight(), ia.Dirs.Reverse()} {
				_ = ia.Dirs.UnsetSign(key, direction.Positive, name)
				_ = ia.Dirs.UnsetSign(key, direction.Negative, name)
				_ = ia.Dirs.UnsetDir(key, name)
			}
			_ = ia.Dirs.UnsetDir(direction.Undirected, name)
		}
		ia.References = rebuildReferences(ia.RefsBySource)
		if err := b.engine.UpdateInteraction(ia); err != nil {
			return fmt.Errorf("updating edge %s: %w", ia.ID, err)
		}
	}

	mols, err := b.engine.AllMolecules()
	if err != nil {
		return fmt.Errorf("removing source %s: %w", name, err)
	}
	for _, mol := range mols {
		if !containsString(mol.Sources, name) {
			continue
		}
		mol.Sources = removeString(mol.Sources, name)
		if err := b.engine.UpdateMolecule(mol); err != nil {
			return fmt.Errorf("updating node %s: %w", mol.ID, err)
		}
	}

	if _, err := b.PruneOrphans(); err != nil {
		return err
	}
	return nil
}

// RefreshSources recomputes every node's source set as the union of the
// source sets of its incident edges. Run after a consistency pass so node
// provenance reflects only surviving evidence.
func (b *Builder) RefreshSources() error {
	mols, err := b.engine.AllMolecules()
	if err != nil {
		return fmt.Errorf("refreshing sources: %w", err)
	}

	for _, mol := range mols {
		ias, err := b.engine.GetInteractionsOf(mol.ID)
		if err != nil {
			return fmt.Errorf("refreshing sources of %s: %w", mol.ID, err)
		}
		sources := []string{}
		for _, ia := range ias {
			sources = appendUniqueAll(sources, ia.Sources)
		}
		sort.Strings(sources)
		mol.Sources = sources
		if err := b.engine.UpdateMolecule(mol); err != nil {
			return fmt.Errorf("refreshing sources of %s: %w", mol.ID, err)
		}
	}
	return nil
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func removeString(xs []string, v string) []string {
	out := xs[:0]
	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func rebuildReferences(bySource map[string][]string) []string {
	refs := []string{}
	for _, rs := range bySource {
		refs = appendUniqueAll(refs, rs)
	}
	sort.Strings(refs)
	return refs
}
