package integrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkovacs/molnet/pkg/direction"
	"github.com/tkovacs/molnet/pkg/reflist"
	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/source"
	"github.com/tkovacs/molnet/pkg/storage"
)

func mustLoad(t *testing.T, b *Builder, records ...source.Record) {
	t.Helper()
	_, err := b.Load(records)
	require.NoError(t, err)
}

func taxonRecord(a, b, src string, taxA, taxB int) source.Record {
	rec := proteinRecord(a, b, src)
	rec.TaxonA, rec.TaxonB = taxA, taxB
	return rec
}

func TestSimplifyMergesDuplicateEdges(t *testing.T) {
	b := newTestBuilder(t)
	mustLoad(t, b, proteinRecord("P1", "P2", "SrcA"))

	// Inject a duplicate edge for the same pair under a different ID,
	// as a pre-simplification network could contain.
	dup := &storage.Interaction{
		ID:           "dup-edge",
		NodeA:        "P1",
		NodeB:        "P2",
		Sources:      []string{"SrcB"},
		References:   []string{"999"},
		RefsBySource: map[string][]string{"SrcB": {"999"}},
		Dirs:         direction.New("P1", "P2"),
		Properties:   map[string]any{},
	}
	require.NoError(t, dup.Dirs.SetDir(direction.Key{From: "P1", To: "P2"}, "SrcB"))
	require.NoError(t, b.Engine().CreateInteraction(dup))

	stats, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicateEdges)

	count, err := b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ias, err := b.Engine().GetInteractionsBetween("P1", "P2")
	require.NoError(t, err)
	require.Len(t, ias, 1)
	assert.ElementsMatch(t, []string{"SrcA", "SrcB"}, ias[0].Sources)
	assert.Contains(t, ias[0].References, "999")
	assert.True(t, ias[0].Dirs.IsDirected())
}

func TestSimplifyRemovesLoops(t *testing.T) {
	b := newTestBuilder(t, WithLoops())
	mustLoad(t, b, proteinRecord("P1", "P1", "SrcA"), proteinRecord("P1", "P2", "SrcA"))

	count, err := b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Disallow loops and clean: the self-interaction goes away.
	b.allowLoops = false
	stats, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LoopsRemoved)

	count, err = b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCleanRemovesUnmapped(t *testing.T) {
	mapper := resolve.NewTableMapper()
	mapper.RegisterTable("genesymbol", "uniprot", map[string][]string{
		"EGFR": {"P00533"}, "GRB2": {"P62993"},
	})
	b := newTestBuilder(t, WithMapper(mapper), WithDefaultIDType("protein", "uniprot"))

	good := proteinRecord("EGFR", "GRB2", "SrcA")
	good.NameTypeA, good.NameTypeB = "genesymbol", "genesymbol"
	bad := proteinRecord("EGFR", "NOSUCH", "SrcA")
	bad.NameTypeA, bad.NameTypeB = "genesymbol", "genesymbol"
	mustLoad(t, b, good, bad)

	require.True(t, b.Engine().HasMolecule(resolve.Unmapped))

	stats, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnmappedNodes)

	assert.False(t, b.Engine().HasMolecule(resolve.Unmapped))
	assert.True(t, b.Engine().HasMolecule("P00533"))
	assert.True(t, b.Engine().HasMolecule("P62993"))
}

func TestCleanTaxonFilterAndOrphanPrune(t *testing.T) {
	b := newTestBuilder(t, WithAllowedTaxa(9606))
	mustLoad(t, b,
		taxonRecord("P1", "P2", "SrcA", 9606, 9606),
		taxonRecord("P3", "M1", "SrcA", 9606, 10090),
	)

	stats, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TaxonFiltered)
	// P3's only neighbor was the mouse protein; it becomes an orphan.
	assert.Equal(t, 1, stats.OrphansPruned)

	assert.False(t, b.Engine().HasMolecule("M1"))
	assert.False(t, b.Engine().HasMolecule("P3"))
	assert.True(t, b.Engine().HasMolecule("P1"))
	assert.True(t, b.Engine().HasMolecule("P2"))
}

func TestDeleteUnknownValidatesBeforeDeleting(t *testing.T) {
	lists := reflist.NewRegistry()
	lists.Add(reflist.NewList("protein", "uniprot", 9606, []string{"P1", "P2"}))

	b := newTestBuilder(t, WithReferenceLists(lists))
	mustLoad(t, b,
		taxonRecord("P1", "P2", "SrcA", 9606, 9606),
		taxonRecord("P1", "Y1", "SrcA", 9606, 4932),
	)

	// No list for taxon 4932: the pass must fail with nothing deleted.
	_, err := b.DeleteUnknown()
	assert.ErrorIs(t, err, reflist.ErrMissingList)

	count, err := b.Engine().MoleculeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// With the missing list registered, unknown nodes are removed.
	lists.Add(reflist.NewList("protein", "uniprot", 4932, []string{"Y1"}))
	removed, err := b.DeleteUnknown()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// Shrink the human list so P2 becomes unknown.
	lists.Add(reflist.NewList("protein", "uniprot", 9606, []string{"P1"}))
	removed, err = b.DeleteUnknown()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, b.Engine().HasMolecule("P2"))
}

func TestDeleteUnknownLeavesUnlistedKindsAlone(t *testing.T) {
	lists := reflist.NewRegistry()
	lists.Add(reflist.NewList("protein", "uniprot", 9606, []string{"P1", "P2"}))

	b := newTestBuilder(t, WithReferenceLists(lists))

	mir := proteinRecord("P1", "MIMAT0000062", "SrcA")
	mir.KindB = "mirna"
	mir.NameTypeB = "mirbase"
	mustLoad(t, b,
		proteinRecord("P1", "P2", "SrcA"),
		proteinRecord("P1", "P9", "SrcA"),
		mir,
	)

	// No miRNA list registered: the kind is not under validation, the
	// pass must still run and only filter proteins.
	stats, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnknownNodes)

	assert.False(t, b.Engine().HasMolecule("P9"))
	assert.True(t, b.Engine().HasMolecule("MIMAT0000062"))
	assert.True(t, b.Engine().HasMolecule("P1"))
	assert.True(t, b.Engine().HasMolecule("P2"))
}

func TestCleanIsIdempotent(t *testing.T) {
	b := newTestBuilder(t, WithAllowedTaxa(9606))
	mustLoad(t, b,
		taxonRecord("P1", "P2", "SrcA", 9606, 9606),
		taxonRecord("P3", "M1", "SrcA", 9606, 10090),
	)

	_, err := b.Clean()
	require.NoError(t, err)

	second, err := b.Clean()
	require.NoError(t, err)
	assert.Equal(t, CleanStats{}, second)
}

func TestRemoveSource(t *testing.T) {
	b := newTestBuilder(t)

	shared := proteinRecord("P1", "P2", "SrcA")
	shared.IsDirected = true
	shared.References = []string{"111"}
	only := proteinRecord("P2", "P3", "SrcA")
	other := proteinRecord("P1", "P2", "SrcB")
	other.References = []string{"222"}
	mustLoad(t, b, shared, only, other)

	require.NoError(t, b.RemoveSource("SrcA"))

	// The SrcA-only edge and its now isolated endpoint are gone.
	assert.False(t, b.Engine().HasMolecule("P3"))

	ias, err := b.Engine().GetInteractionsBetween("P1", "P2")
	require.NoError(t, err)
	require.Len(t, ias, 1)
	assert.Equal(t, []string{"SrcB"}, ias[0].Sources)
	assert.Equal(t, []string{"222"}, ias[0].References)
	assert.NotContains(t, ias[0].RefsBySource, "SrcA")
	assert.False(t, ias[0].Dirs.IsDirected())
}

func TestRefreshSources(t *testing.T) {
	b := newTestBuilder(t)
	mustLoad(t, b, proteinRecord("P1", "P2", "SrcA"), proteinRecord("P2", "P3", "SrcB"))

	require.NoError(t, b.RefreshSources())

	p2, err := b.Engine().GetMolecule("P2")
	require.NoError(t, err)
	assert.Equal(t, []string{"SrcA", "SrcB"}, p2.Sources)

	p1, err := b.Engine().GetMolecule("P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SrcA"}, p1.Sources)
}

func TestDirectedEdgesProjection(t *testing.T) {
	b := newTestBuilder(t)

	fwd := proteinRecord("A", "B", "SrcA")
	fwd.IsDirected = true
	fwd.IsStimulation = true
	rev := source.Record{
		NameA: "B", NameB: "A",
		NameTypeA: "uniprot", NameTypeB: "uniprot",
		KindA: "protein", KindB: "protein",
		Source: "SrcB", TaxonA: 9606, TaxonB: 9606,
		IsDirected: true, IsInhibition: true,
	}
	undir := proteinRecord("A", "C", "SrcC")
	mustLoad(t, b, fwd, rev, undir)

	arcs, err := b.DirectedEdges()
	require.NoError(t, err)
	require.Len(t, arcs, 2)

	assert.Equal(t, storage.NodeID("A"), arcs[0].From)
	assert.Equal(t, storage.NodeID("B"), arcs[0].To)
	assert.True(t, arcs[0].IsStimulation)
	assert.Equal(t, []string{"SrcA"}, arcs[0].Sources)

	assert.Equal(t, storage.NodeID("B"), arcs[1].From)
	assert.Equal(t, storage.NodeID("A"), arcs[1].To)
	assert.True(t, arcs[1].IsInhibition)
}
