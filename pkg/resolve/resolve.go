// Package resolve translates molecule names between identifier namespaces.
//
// Source databases name the same molecule in different vocabularies: gene
// symbols, UniProt accessions, Entrez IDs, miRBase IDs. Before two records
// can be merged they must be translated to one canonical namespace, and a
// single input name can legitimately resolve to several canonical IDs (a
// gene symbol shared by paralogs) or to none at all.
//
// The Mapper interface is the contract the integration pipeline programs
// against; TableMapper is the lookup-table implementation used in practice.
package resolve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Unmapped is the placeholder identifier assigned to names that resolve to
// nothing. Edges touching unmapped nodes are removed by the consistency
// pass rather than silently dropped during loading, so failed mappings stay
// countable.
const Unmapped = "unmapped"

// ErrNoTable is returned when no translation table covers the requested
// namespace pair. Distinct from an empty result: a missing table means the
// whole source cannot be processed.
var ErrNoTable = errors.New("no mapping table for namespace pair")

// Mapper resolves a name from one identifier namespace to another. A nil
// or empty result with a nil error means the name has no known
// translation.
type Mapper interface {
	Resolve(name, fromType, toType string) ([]string, error)
}

// tableKey identifies one translation direction.
type tableKey struct {
	from string
	to   string
}

// TableMapper is a Mapper backed by in-memory lookup tables, one per
// (fromType, toType) namespace pair. Lookups are case-sensitive except
// that surrounding whitespace is trimmed. Safe for concurrent use.
type TableMapper struct {
	mu     sync.RWMutex
	tables map[tableKey]map[string][]string
}

// NewTableMapper creates an empty TableMapper.
func NewTableMapper() *TableMapper {
	return &TableMapper{tables: make(map[tableKey]map[string][]string)}
}

// RegisterTable installs a translation table for the namespace pair. The
// table maps an input name to its canonical IDs. Entries merge with any
// previously registered table for the same pair.
func (m *TableMapper) RegisterTable(fromType, toType string, table map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tableKey{from: fromType, to: toType}
	if m.tables[key] == nil {
		m.tables[key] = make(map[string][]string, len(table))
	}
	dst := m.tables[key]
	for name, ids := range table {
		dst[name] = appendUnique(dst[name], ids)
	}
}

// LoadTableFile reads a two-column tab-separated file into the table for
// the namespace pair. Column one is the input name, column two the
// canonical ID; a name appearing on several lines accumulates all its IDs.
// Blank lines and lines starting with '#' are skipped.
func (m *TableMapper) LoadTableFile(fromType, toType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening mapping table %s: %w", path, err)
	}
	defer f.Close()

	table, err := readTable(f)
	if err != nil {
		return fmt.Errorf("reading mapping table %s: %w", path, err)
	}
	m.RegisterTable(fromType, toType, table)
	return nil
}

func readTable(r io.Reader) (map[string][]string, error) {
	table := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 tab-separated columns, got %d", lineNo, len(fields))
		}
		name := strings.TrimSpace(fields[0])
		id := strings.TrimSpace(fields[1])
		if name == "" || id == "" {
			continue
		}
		table[name] = appendUnique(table[name], []string{id})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// Resolve translates a name between namespaces. Identical namespaces pass
// the name through unchanged. An unknown name in a known table returns an
// empty slice; a missing table returns ErrNoTable.
func (m *TableMapper) Resolve(name, fromType, toType string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if fromType == toType {
		return []string{name}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	table, ok := m.tables[tableKey{from: fromType, to: toType}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoTable, fromType, toType)
	}
	ids := table[name]
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out, nil
}

// HasTable reports whether a table covers the namespace pair.
func (m *TableMapper) HasTable(fromType, toType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[tableKey{from: fromType, to: toType}]
	return ok
}

// Identity is a Mapper that passes every name through unchanged regardless
// of namespaces. Useful for tests and for inputs already in canonical form.
type Identity struct{}

// Resolve returns the trimmed name itself, or nothing for an empty name.
func (Identity) Resolve(name, fromType, toType string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return []string{name}, nil
}

func appendUnique(dst []string, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

var (
	_ Mapper = (*TableMapper)(nil)
	_ Mapper = Identity{}
)
