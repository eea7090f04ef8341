package integrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkovacs/molnet/pkg/direction"
	"github.com/tkovacs/molnet/pkg/storage"
)

func newTestBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	return NewBuilder(engine, opts...)
}

func TestUpsertNodeCreatesAndMerges(t *testing.T) {
	b := newTestBuilder(t)

	ident := NodeIdentity{
		ID: "P00533", Kind: "protein", IDType: "uniprot", Taxon: 9606,
		OriginalName: "EGFR", OriginalType: "genesymbol",
	}
	_, err := b.UpsertNode(ident, "SrcA", map[string]any{"family": "RTK"})
	require.NoError(t, err)

	mol, err := b.Engine().GetMolecule("P00533")
	require.NoError(t, err)
	assert.Equal(t, "protein", mol.Kind)
	assert.Equal(t, map[string]string{"EGFR": "genesymbol"}, mol.OriginalNames)
	assert.Equal(t, []string{"SrcA"}, mol.Sources)
	assert.Equal(t, "RTK", mol.Properties["family"])

	ident.OriginalName = "ERBB1"
	_, err = b.UpsertNode(ident, "SrcB", map[string]any{"family": "RTK"})
	require.NoError(t, err)

	mol, err = b.Engine().GetMolecule("P00533")
	require.NoError(t, err)
	assert.Len(t, mol.OriginalNames, 2)
	assert.Equal(t, []string{"SrcA", "SrcB"}, mol.Sources)
	assert.Equal(t, "RTK", mol.Properties["family"])
}

func TestUpsertNodeAttributeConflictKeepsExisting(t *testing.T) {
	b := newTestBuilder(t)

	ident := NodeIdentity{ID: "P1", Kind: "protein", IDType: "uniprot", Taxon: 9606,
		OriginalName: "P1", OriginalType: "uniprot"}

	_, err := b.UpsertNode(ident, "SrcA", map[string]any{"score": 3.5})
	require.NoError(t, err)

	conflicts, err := b.UpsertNode(ident, "SrcB", map[string]any{"score": "high"})
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	mol, err := b.Engine().GetMolecule("P1")
	require.NoError(t, err)
	assert.Equal(t, 3.5, mol.Properties["score"])
}

func TestUpsertNodeTaxonCombineOrderInsensitive(t *testing.T) {
	load := func(taxa ...int) *storage.Molecule {
		b := newTestBuilder(t)
		for _, tax := range taxa {
			ident := NodeIdentity{ID: "P1", Kind: "protein", IDType: "uniprot",
				Taxon: tax, OriginalName: "P1", OriginalType: "uniprot"}
			_, err := b.UpsertNode(ident, "SrcA", nil)
			require.NoError(t, err)
		}
		mol, err := b.Engine().GetMolecule("P1")
		require.NoError(t, err)
		return mol
	}

	// Numeric combine keeps the maximum, so record order is irrelevant.
	assert.Equal(t, 10090, load(9606, 10090).Taxon)
	assert.Equal(t, 10090, load(10090, 9606).Taxon)
}

func TestUpsertNodeKindConflictKeepsStored(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.UpsertNode(NodeIdentity{ID: "X1", Kind: "protein", IDType: "uniprot",
		Taxon: 9606, OriginalName: "X1", OriginalType: "uniprot"}, "SrcA", nil)
	require.NoError(t, err)

	conflicts, err := b.UpsertNode(NodeIdentity{ID: "X1", Kind: "mirna", IDType: "uniprot",
		Taxon: 9606, OriginalName: "X1", OriginalType: "uniprot"}, "SrcB", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	mol, err := b.Engine().GetMolecule("X1")
	require.NoError(t, err)
	assert.Equal(t, "protein", mol.Kind)
}

func TestUpsertEdgeScenarioOne(t *testing.T) {
	b := newTestBuilder(t)

	for _, id := range []storage.NodeID{"P1", "P2"} {
		_, err := b.UpsertNode(NodeIdentity{ID: id, Kind: "protein", IDType: "uniprot",
			Taxon: 9606, OriginalName: string(id), OriginalType: "uniprot"}, "SrcA", nil)
		require.NoError(t, err)
	}

	_, err := b.UpsertEdge("P1", "P2", EdgeContribution{
		Source: "SrcA", IsDirected: true, IsStimulation: true,
		References: []string{"111"},
	}, true)
	require.NoError(t, err)

	_, err = b.UpsertEdge("P1", "P2", EdgeContribution{
		Source: "SrcB", IsDirected: false, References: []string{"222", "111"},
	}, true)
	require.NoError(t, err)

	count, err := b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ia, err := b.Engine().GetInteraction(storage.NewPairKey("P1", "P2").InteractionID())
	require.NoError(t, err)

	assert.Equal(t, []string{"SrcA", "SrcB"}, ia.Sources)
	assert.Equal(t, []string{"111", "222"}, ia.References)
	assert.Equal(t, []string{"111"}, ia.RefsBySource["SrcA"])
	assert.Equal(t, []string{"222", "111"}, ia.RefsBySource["SrcB"])

	d := ia.Dirs
	require.NotNil(t, d)
	assert.True(t, d.IsDirected())
	assert.Equal(t, []string{"SrcA"}, d.DirSources(direction.Key{From: "P1", To: "P2"}))
	assert.Equal(t, []string{"SrcB"}, d.DirSources(direction.Undirected))
	assert.Equal(t, []string{"SrcA"}, d.SignSources(direction.Key{From: "P1", To: "P2"}, direction.Positive))
	assert.True(t, d.IsStimulation())
	assert.False(t, d.IsInhibition())
}

func TestUpsertEdgeCreationForbidden(t *testing.T) {
	b := newTestBuilder(t)

	for _, id := range []storage.NodeID{"P1", "P2"} {
		_, err := b.UpsertNode(NodeIdentity{ID: id, Kind: "protein", IDType: "uniprot",
			Taxon: 9606, OriginalName: string(id), OriginalType: "uniprot"}, "SrcA", nil)
		require.NoError(t, err)
	}

	_, err := b.UpsertEdge("P1", "P2", EdgeContribution{Source: "SrcA"}, false)
	assert.ErrorIs(t, err, ErrEdgeCreationNotPermitted)

	failed := b.FailedEdges()
	require.Len(t, failed, 1)
	assert.Equal(t, storage.NodeID("P1"), failed[0].NodeA)
	assert.Equal(t, storage.NodeID("P2"), failed[0].NodeB)
	assert.Equal(t, "SrcA", failed[0].Source)

	count, err := b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUpsertEdgeSignImpliesDirection(t *testing.T) {
	b := newTestBuilder(t)

	for _, id := range []storage.NodeID{"A", "B"} {
		_, err := b.UpsertNode(NodeIdentity{ID: id, Kind: "protein", IDType: "uniprot",
			Taxon: 9606, OriginalName: string(id), OriginalType: "uniprot"}, "Src", nil)
		require.NoError(t, err)
	}

	_, err := b.UpsertEdge("B", "A", EdgeContribution{
		Source: "Src", IsDirected: true, IsInhibition: true,
	}, true)
	require.NoError(t, err)

	ia, err := b.Engine().GetInteraction(storage.NewPairKey("A", "B").InteractionID())
	require.NoError(t, err)

	key := direction.Key{From: "B", To: "A"}
	assert.True(t, ia.Dirs.HasSign(key, direction.Negative))
	assert.True(t, ia.Dirs.Dir(key))
	assert.False(t, ia.Dirs.Dir(direction.Key{From: "A", To: "B"}))
}

func TestMergeInteractionType(t *testing.T) {
	assert.Equal(t, "PPI", mergeInteractionType("", "PPI"))
	assert.Equal(t, "PPI", mergeInteractionType("PPI", ""))
	assert.Equal(t, "PPI", mergeInteractionType("PPI", "PPI"))
	assert.Equal(t, "PPI;TF", mergeInteractionType("TF", "PPI"))
	assert.Equal(t, "PPI;TF", mergeInteractionType("PPI;TF", "TF"))
}
