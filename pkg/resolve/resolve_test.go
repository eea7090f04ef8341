package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableMapperResolve(t *testing.T) {
	m := NewTableMapper()
	m.RegisterTable("genesymbol", "uniprot", map[string][]string{
		"EGFR": {"P00533"},
		"AKT":  {"P31749", "P31751", "Q9Y243"},
		"TP53": {"P04637"},
	})

	t.Run("single_hit", func(t *testing.T) {
		ids, err := m.Resolve("EGFR", "genesymbol", "uniprot")
		require.NoError(t, err)
		assert.Equal(t, []string{"P00533"}, ids)
	})

	t.Run("multi_hit_sorted", func(t *testing.T) {
		ids, err := m.Resolve("AKT", "genesymbol", "uniprot")
		require.NoError(t, err)
		assert.Equal(t, []string{"P31749", "P31751", "Q9Y243"}, ids)
	})

	t.Run("unknown_name_empty_not_error", func(t *testing.T) {
		ids, err := m.Resolve("NOSUCHGENE", "genesymbol", "uniprot")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("identity_when_types_match", func(t *testing.T) {
		ids, err := m.Resolve("P00533", "uniprot", "uniprot")
		require.NoError(t, err)
		assert.Equal(t, []string{"P00533"}, ids)
	})

	t.Run("missing_table", func(t *testing.T) {
		_, err := m.Resolve("hsa-miR-21", "mirbase", "uniprot")
		assert.ErrorIs(t, err, ErrNoTable)
	})

	t.Run("whitespace_trimmed", func(t *testing.T) {
		ids, err := m.Resolve("  TP53 ", "genesymbol", "uniprot")
		require.NoError(t, err)
		assert.Equal(t, []string{"P04637"}, ids)
	})

	t.Run("empty_name", func(t *testing.T) {
		ids, err := m.Resolve("", "genesymbol", "uniprot")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestRegisterTableMerges(t *testing.T) {
	m := NewTableMapper()
	m.RegisterTable("genesymbol", "uniprot", map[string][]string{"AKT": {"P31749"}})
	m.RegisterTable("genesymbol", "uniprot", map[string][]string{"AKT": {"P31751", "P31749"}})

	ids, err := m.Resolve("AKT", "genesymbol", "uniprot")
	require.NoError(t, err)
	assert.Equal(t, []string{"P31749", "P31751"}, ids)
}

func TestLoadTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.tsv")
	content := "# symbol -> uniprot\n" +
		"EGFR\tP00533\n" +
		"AKT\tP31749\n" +
		"AKT\tP31751\n" +
		"\n" +
		"TP53\tP04637\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewTableMapper()
	require.NoError(t, m.LoadTableFile("genesymbol", "uniprot", path))
	assert.True(t, m.HasTable("genesymbol", "uniprot"))
	assert.False(t, m.HasTable("uniprot", "genesymbol"))

	ids, err := m.Resolve("AKT", "genesymbol", "uniprot")
	require.NoError(t, err)
	assert.Equal(t, []string{"P31749", "P31751"}, ids)
}

func TestLoadTableFileErrors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		m := NewTableMapper()
		err := m.LoadTableFile("a", "b", filepath.Join(t.TempDir(), "nope.tsv"))
		assert.Error(t, err)
	})

	t.Run("malformed_line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.tsv")
		require.NoError(t, os.WriteFile(path, []byte("justonecolumn\n"), 0o644))
		m := NewTableMapper()
		assert.Error(t, m.LoadTableFile("a", "b", path))
	})
}

func TestIdentityMapper(t *testing.T) {
	var m Mapper = Identity{}

	ids, err := m.Resolve("anything", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"anything"}, ids)

	ids, err = m.Resolve("  spaced  ", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"spaced"}, ids)

	ids, err = m.Resolve("", "x", "y")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
