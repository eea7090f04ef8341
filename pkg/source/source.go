// Package source defines the standardized interaction record produced by
// per-source parsers, and a configurable delimited-file parser that covers
// most curated interaction databases without source-specific code.
//
// Every upstream database ships a different column layout, but nearly all
// of them are flat delimited text: two name columns, an optional reference
// column, an optional direction or sign column, fixed or per-row organism.
// ReadSettings describes such a layout declaratively; ReadRecords applies
// it and emits Records ready for the integration pipeline.
package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Record is one standardized interaction observation. This is the only
// shape the integration pipeline accepts; parsers of any format produce
// these.
type Record struct {
	NameA     string
	NameB     string
	NameTypeA string
	NameTypeB string
	KindA     string
	KindB     string

	Source          string
	IsDirected      bool
	References      []string
	IsStimulation   bool
	IsInhibition    bool
	TaxonA          int
	TaxonB          int
	InteractionType string

	ExtraNodeA map[string]any
	ExtraNodeB map[string]any
	ExtraEdge  map[string]any
}

// ColumnSpec describes one extra attribute column. If Separator is
// non-empty the field is split into a collection value, otherwise it is
// taken as a scalar string.
type ColumnSpec struct {
	Col       int
	Separator string
}

// DirectedSpec describes how a row's directedness is decided. With
// Always set, every row is directed. Otherwise the value in column Col is
// compared against Values; a match means directed.
type DirectedSpec struct {
	Always bool
	Col    int
	Values []string
}

// SignSpec describes how stimulation and inhibition are decided from a
// sign column. The value in Col is compared against PositiveValues and
// NegativeValues.
type SignSpec struct {
	Enabled        bool
	Col            int
	PositiveValues []string
	NegativeValues []string
}

// RefSpec describes the literature reference column. The field is split
// on Separator and deduplicated.
type RefSpec struct {
	Enabled   bool
	Col       int
	Separator string
}

// TaxonSpec describes how organism tags are decided. A fixed taxon
// applies to both endpoints. Alternatively ColA/ColB name per-row columns
// whose values are translated through Mapping; rows whose value is absent
// from Mapping are skipped, since an unknown organism cannot be filtered
// correctly later.
type TaxonSpec struct {
	Fixed   int
	PerRow  bool
	ColA    int
	ColB    int
	Mapping map[string]int
}

// ReadSettings declares the layout of one source's delimited file.
type ReadSettings struct {
	// Name is the source label recorded on every emitted Record.
	Name string

	Separator string
	Header    bool

	NameColA  int
	NameColB  int
	NameTypeA string
	NameTypeB string
	KindA     string
	KindB     string

	Directed DirectedSpec
	Sign     SignSpec
	Refs     RefSpec
	Taxon    TaxonSpec

	InteractionType string

	ExtraEdgeAttrs  map[string]ColumnSpec
	ExtraNodeAttrsA map[string]ColumnSpec
	ExtraNodeAttrsB map[string]ColumnSpec
}

// ReadStats counts what happened during one parse.
type ReadStats struct {
	LinesRead    int
	Records      int
	SchemaErrors int
	TaxonSkipped int
}

// maxColumn returns the largest column index the settings reference, for
// row-width validation.
func (s *ReadSettings) maxColumn() int {
	maxCol := s.NameColA
	grow := func(c int) {
		if c > maxCol {
			maxCol = c
		}
	}
	grow(s.NameColB)
	if !s.Directed.Always && len(s.Directed.Values) > 0 {
		grow(s.Directed.Col)
	}
	if s.Sign.Enabled {
		grow(s.Sign.Col)
	}
	if s.Refs.Enabled {
		grow(s.Refs.Col)
	}
	if s.Taxon.PerRow {
		grow(s.Taxon.ColA)
		grow(s.Taxon.ColB)
	}
	for _, spec := range s.ExtraEdgeAttrs {
		grow(spec.Col)
	}
	for _, spec := range s.ExtraNodeAttrsA {
		grow(spec.Col)
	}
	for _, spec := range s.ExtraNodeAttrsB {
		grow(spec.Col)
	}
	return maxCol
}

// ReadFile parses a delimited file per the settings. See ReadRecords.
func ReadFile(settings *ReadSettings, path string, logger *zap.Logger) ([]Record, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("opening source file %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecords(settings, f, logger)
}

// ReadRecords parses delimited text per the settings. Rows with too few
// fields are schema errors: logged, counted, skipped; the parse continues.
// Rows whose organism cannot be determined are skipped and counted
// separately. A nil logger disables logging.
func ReadRecords(settings *ReadSettings, r io.Reader, logger *zap.Logger) ([]Record, ReadStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sep := settings.Separator
	if sep == "" {
		sep = "\t"
	}
	maxCol := settings.maxColumn()

	var records []Record
	var stats ReadStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	headerPending := settings.Header
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if len(line) <= 1 {
			continue
		}
		// The header is the first non-empty line, wherever it sits.
		if headerPending {
			headerPending = false
			continue
		}
		stats.LinesRead++

		fields := strings.Split(line, sep)
		if len(fields) <= maxCol {
			stats.SchemaErrors++
			logger.Warn("row has too few fields",
				zap.String("source", settings.Name),
				zap.Int("line", lineNo),
				zap.Int("fields", len(fields)),
				zap.Int("required", maxCol+1))
			continue
		}

		rec, ok := settings.buildRecord(fields)
		if !ok {
			stats.TaxonSkipped++
			continue
		}
		records = append(records, rec)
		stats.Records++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("reading source %s: %w", settings.Name, err)
	}
	return records, stats, nil
}

// buildRecord converts one validated row into a Record. The second return
// is false when the row's organism is unknown.
func (s *ReadSettings) buildRecord(fields []string) (Record, bool) {
	rec := Record{
		NameA:           strings.TrimSpace(fields[s.NameColA]),
		NameB:           strings.TrimSpace(fields[s.NameColB]),
		NameTypeA:       s.NameTypeA,
		NameTypeB:       s.NameTypeB,
		KindA:           s.KindA,
		KindB:           s.KindB,
		Source:          s.Name,
		InteractionType: s.InteractionType,
	}

	rec.IsDirected = s.Directed.Always
	if !rec.IsDirected && len(s.Directed.Values) > 0 {
		rec.IsDirected = contains(s.Directed.Values, fields[s.Directed.Col])
	}

	if s.Sign.Enabled {
		val := fields[s.Sign.Col]
		switch {
		case contains(s.Sign.PositiveValues, val):
			rec.IsStimulation = true
		case contains(s.Sign.NegativeValues, val):
			rec.IsInhibition = true
		}
	}

	if s.Refs.Enabled {
		rec.References = splitUnique(fields[s.Refs.Col], s.Refs.Separator)
	}

	if s.Taxon.PerRow {
		taxA, okA := s.Taxon.Mapping[fields[s.Taxon.ColA]]
		taxB, okB := s.Taxon.Mapping[fields[s.Taxon.ColB]]
		if !okA || !okB {
			return Record{}, false
		}
		rec.TaxonA, rec.TaxonB = taxA, taxB
	} else {
		rec.TaxonA, rec.TaxonB = s.Taxon.Fixed, s.Taxon.Fixed
	}

	rec.ExtraEdge = extractAttrs(fields, s.ExtraEdgeAttrs)
	rec.ExtraNodeA = extractAttrs(fields, s.ExtraNodeAttrsA)
	rec.ExtraNodeB = extractAttrs(fields, s.ExtraNodeAttrsB)
	return rec, true
}

// extractAttrs pulls extra attribute columns out of a row. Columns with a
// separator become []string collections, the rest plain strings.
func extractAttrs(fields []string, specs map[string]ColumnSpec) map[string]any {
	if len(specs) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(specs))
	for name, spec := range specs {
		if spec.Separator != "" {
			attrs[name] = splitUnique(fields[spec.Col], spec.Separator)
		} else {
			attrs[name] = strings.TrimSpace(fields[spec.Col])
		}
	}
	return attrs
}

func splitUnique(field, sep string) []string {
	if sep == "" {
		sep = ";"
	}
	parts := strings.Split(field, sep)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
