package integrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/source"
	"github.com/tkovacs/molnet/pkg/storage"
)

func proteinRecord(a, b, src string) source.Record {
	return source.Record{
		NameA: a, NameB: b,
		NameTypeA: "uniprot", NameTypeB: "uniprot",
		KindA: "protein", KindB: "protein",
		Source: src, TaxonA: 9606, TaxonB: 9606,
	}
}

func TestLoadBasic(t *testing.T) {
	b := newTestBuilder(t)

	records := []source.Record{
		proteinRecord("P1", "P2", "SrcA"),
		proteinRecord("P2", "P3", "SrcA"),
		proteinRecord("P1", "P2", "SrcB"),
	}
	records[0].IsDirected = true
	records[0].IsStimulation = true
	records[0].References = []string{"111"}

	stats, err := b.Load(records)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.RecordsRead)
	assert.Equal(t, 3, stats.RecordsMapped)
	assert.Equal(t, 3, stats.NodesCreated)
	assert.Equal(t, 2, stats.EdgesCreated)
	assert.Equal(t, 0, stats.EdgeFailures)
	assert.NotEmpty(t, stats.SessionID)

	ia, err := b.Engine().GetInteraction(storage.NewPairKey("P1", "P2").InteractionID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SrcA", "SrcB"}, ia.Sources)
	assert.True(t, ia.Dirs.IsDirected())
	assert.True(t, ia.Dirs.IsStimulation())
}

func TestLoadIsRepeatable(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Load([]source.Record{proteinRecord("P1", "P2", "SrcA")})
	require.NoError(t, err)

	stats, err := b.Load([]source.Record{
		proteinRecord("P1", "P2", "SrcB"),
		proteinRecord("P2", "P3", "SrcB"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NodesCreated)
	assert.Equal(t, 1, stats.EdgesCreated)

	count, err := b.Engine().MoleculeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	ia, err := b.Engine().GetInteraction(storage.NewPairKey("P1", "P2").InteractionID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SrcA", "SrcB"}, ia.Sources)
}

func TestLoadAmbiguousResolutionFansOut(t *testing.T) {
	mapper := resolve.NewTableMapper()
	mapper.RegisterTable("genesymbol", "uniprot", map[string][]string{
		"AKT":   {"C1", "C2"},
		"GSK3B": {"D1"},
	})

	b := newTestBuilder(t,
		WithMapper(mapper),
		WithDefaultIDType("protein", "uniprot"),
	)

	rec := proteinRecord("AKT", "GSK3B", "SrcA")
	rec.NameTypeA = "genesymbol"
	rec.NameTypeB = "genesymbol"

	stats, err := b.Load([]source.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsMapped)
	assert.Equal(t, 2, stats.EdgesCreated)

	for _, pair := range []storage.PairKey{
		storage.NewPairKey("C1", "D1"),
		storage.NewPairKey("C2", "D1"),
	} {
		_, err := b.Engine().GetInteraction(pair.InteractionID())
		assert.NoError(t, err)
	}

	mol, err := b.Engine().GetMolecule("C1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AKT": "genesymbol"}, mol.OriginalNames)
}

func TestLoadUnmappedSentinel(t *testing.T) {
	mapper := resolve.NewTableMapper()
	mapper.RegisterTable("genesymbol", "uniprot", map[string][]string{
		"EGFR": {"P00533"},
	})

	b := newTestBuilder(t,
		WithMapper(mapper),
		WithDefaultIDType("protein", "uniprot"),
	)

	rec := proteinRecord("EGFR", "NOSUCH", "SrcA")
	rec.NameTypeA = "genesymbol"
	rec.NameTypeB = "genesymbol"

	stats, err := b.Load([]source.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unmapped)
	assert.Equal(t, 0, stats.RecordsMapped)

	assert.True(t, b.Engine().HasMolecule(resolve.Unmapped))

	ia, err := b.Engine().GetInteractionsBetween("P00533", resolve.Unmapped)
	require.NoError(t, err)
	assert.Len(t, ia, 1)
}

func TestLoadMissingTableAborts(t *testing.T) {
	b := newTestBuilder(t,
		WithMapper(resolve.NewTableMapper()),
		WithDefaultIDType("protein", "uniprot"),
	)

	rec := proteinRecord("EGFR", "GRB2", "SrcA")
	rec.NameTypeA = "genesymbol"
	rec.NameTypeB = "genesymbol"

	_, err := b.Load([]source.Record{rec})
	assert.ErrorIs(t, err, resolve.ErrNoTable)

	count, err := b.Engine().MoleculeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLoadSkipsLoops(t *testing.T) {
	b := newTestBuilder(t)

	stats, err := b.Load([]source.Record{proteinRecord("P1", "P1", "SrcA")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LoopsSkipped)

	count, err := b.Engine().InteractionCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLoadOrderInsensitive(t *testing.T) {
	records := []source.Record{
		proteinRecord("P1", "P2", "SrcA"),
		proteinRecord("P1", "P2", "SrcB"),
		proteinRecord("P2", "P3", "SrcC"),
	}
	records[0].IsDirected = true
	records[0].IsStimulation = true
	records[1].References = []string{"9"}

	b1 := newTestBuilder(t)
	_, err := b1.Load(records)
	require.NoError(t, err)

	reversed := []source.Record{records[2], records[1], records[0]}
	b2 := newTestBuilder(t)
	_, err = b2.Load(reversed)
	require.NoError(t, err)

	pair := storage.NewPairKey("P1", "P2")
	ia1, err := b1.Engine().GetInteraction(pair.InteractionID())
	require.NoError(t, err)
	ia2, err := b2.Engine().GetInteraction(pair.InteractionID())
	require.NoError(t, err)

	assert.ElementsMatch(t, ia1.Sources, ia2.Sources)
	assert.ElementsMatch(t, ia1.References, ia2.References)
	assert.True(t, ia1.Dirs.Equal(ia2.Dirs))
}

func TestNormalizeAttributesCollectionWins(t *testing.T) {
	b := newTestBuilder(t)

	r1 := proteinRecord("P1", "P2", "SrcA")
	r1.ExtraNodeA = map[string]any{"pathways": "MAPK"}
	r2 := proteinRecord("P1", "P3", "SrcB")
	r2.ExtraNodeA = map[string]any{"pathways": []string{"PI3K", "RTK"}}

	_, err := b.Load([]source.Record{r1, r2})
	require.NoError(t, err)

	// P1 merged scalar and collection already; P2 and P3 never saw the
	// attribute and must hold the collection zero value.
	p1, err := b.Engine().GetMolecule("P1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"MAPK", "PI3K", "RTK"}, p1.Properties["pathways"])

	p2, err := b.Engine().GetMolecule("P2")
	require.NoError(t, err)
	assert.Equal(t, []any{}, p2.Properties["pathways"])
}
