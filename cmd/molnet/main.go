// Package main provides the MolNet CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tkovacs/molnet/pkg/config"
	"github.com/tkovacs/molnet/pkg/integrate"
	"github.com/tkovacs/molnet/pkg/reflist"
	"github.com/tkovacs/molnet/pkg/resolve"
	"github.com/tkovacs/molnet/pkg/source"
	"github.com/tkovacs/molnet/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "molnet",
		Short: "MolNet - molecular interaction network integration",
		Long: `MolNet integrates interaction records from many curated databases
into a single attributed graph: one node per molecule, one edge per
molecule pair, aggregating the directionality, sign and literature
evidence of every contributing source.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML build config")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MolNet v%s (%s)\n", version, commit)
		},
	})

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the integrated network from the configured sources",
		RunE:  runBuild,
	}
	rootCmd.AddCommand(buildCmd)

	statsCmd := &cobra.Command{
		Use:   "stats <export.json>",
		Short: "Print node and edge counts of an exported network",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	var engine storage.Engine
	if cfg.DataDir != "" {
		engine, err = storage.NewBadgerEngine(cfg.DataDir)
		if err != nil {
			return err
		}
	} else {
		engine = storage.NewMemoryEngine()
	}
	defer engine.Close()

	mapper := resolve.NewTableMapper()
	for _, table := range cfg.MappingTables {
		if err := mapper.LoadTableFile(table.FromType, table.ToType, table.Path); err != nil {
			return err
		}
	}

	lists := reflist.NewRegistry()
	for _, rl := range cfg.ReferenceLists {
		list, err := reflist.LoadFile(rl.Kind, rl.IDType, rl.Taxon, rl.Path)
		if err != nil {
			return err
		}
		lists.Add(list)
	}

	opts := []integrate.Option{
		integrate.WithLogger(logger),
		integrate.WithMapper(mapper),
		integrate.WithReferenceLists(lists),
		integrate.WithAllowedTaxa(cfg.AllowedTaxa...),
	}
	if cfg.AllowLoops {
		opts = append(opts, integrate.WithLoops())
	}
	for kind, idType := range cfg.DefaultIDTypes {
		opts = append(opts, integrate.WithDefaultIDType(kind, idType))
	}
	builder := integrate.NewBuilder(engine, opts...)

	for _, src := range cfg.Sources {
		settings := toReadSettings(src)
		records, readStats, err := source.ReadFile(settings, src.Path, logger)
		if err != nil {
			// A broken source aborts only its own contribution.
			logger.Error("skipping source",
				zap.String("source", src.Name), zap.Error(err))
			continue
		}
		logger.Info("parsed source",
			zap.String("source", src.Name),
			zap.Int("lines", readStats.LinesRead),
			zap.Int("records", readStats.Records),
			zap.Int("schema_errors", readStats.SchemaErrors),
			zap.Int("taxon_skipped", readStats.TaxonSkipped))

		loadStats, err := builder.Load(records)
		if err != nil {
			if errors.Is(err, resolve.ErrNoTable) {
				logger.Error("skipping source, mapping table missing",
					zap.String("source", src.Name), zap.Error(err))
				continue
			}
			return err
		}
		fmt.Printf("%s: %d records read, %d mapped, %d unmapped, %d edge failures, %d type conflicts\n",
			src.Name, loadStats.RecordsRead, loadStats.RecordsMapped,
			loadStats.Unmapped, loadStats.EdgeFailures, loadStats.TypeConflicts)
	}

	cleanStats, err := builder.Clean()
	if err != nil {
		return err
	}
	if err := builder.RefreshSources(); err != nil {
		return err
	}

	nodes, err := engine.MoleculeCount()
	if err != nil {
		return err
	}
	edges, err := engine.InteractionCount()
	if err != nil {
		return err
	}
	fmt.Printf("network %s: %d molecules, %d interactions (removed: %d duplicates, %d unmapped, %d foreign-taxon, %d unknown, %d orphans)\n",
		cfg.Name, nodes, edges,
		cleanStats.DuplicateEdges, cleanStats.UnmappedNodes,
		cleanStats.TaxonFiltered, cleanStats.UnknownNodes, cleanStats.OrphansPruned)

	if failed := builder.FailedEdges(); len(failed) > 0 {
		fmt.Printf("%d edge creations were refused; rerun with debug logging for details\n", len(failed))
	}

	if cfg.ExportPath != "" {
		if err := storage.SaveNetwork(engine, cfg.Name, cfg.ExportPath); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", cfg.ExportPath)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	engine := storage.NewMemoryEngine()
	defer engine.Close()

	if err := storage.LoadNetwork(engine, args[0]); err != nil {
		return err
	}
	nodes, err := engine.MoleculeCount()
	if err != nil {
		return err
	}
	edges, err := engine.InteractionCount()
	if err != nil {
		return err
	}

	byKind := map[string]int{}
	mols, err := engine.AllMolecules()
	if err != nil {
		return err
	}
	for _, mol := range mols {
		byKind[mol.Kind]++
	}

	fmt.Printf("%d molecules, %d interactions\n", nodes, edges)
	for kind, n := range byKind {
		fmt.Printf("  %s: %d\n", kind, n)
	}
	return nil
}

// toReadSettings converts a config source declaration into parser
// settings.
func toReadSettings(src config.Source) *source.ReadSettings {
	settings := &source.ReadSettings{
		Name:            src.Name,
		Separator:       src.Separator,
		Header:          src.Header,
		NameColA:        src.NameColA,
		NameColB:        src.NameColB,
		NameTypeA:       src.NameTypeA,
		NameTypeB:       src.NameTypeB,
		KindA:           src.KindA,
		KindB:           src.KindB,
		InteractionType: src.InteractionType,
		Directed: source.DirectedSpec{
			Always: src.Directed.Always,
			Col:    src.Directed.Col,
			Values: src.Directed.Values,
		},
		Sign: source.SignSpec{
			Enabled:        src.Sign.Enabled,
			Col:            src.Sign.Col,
			PositiveValues: src.Sign.PositiveValues,
			NegativeValues: src.Sign.NegativeValues,
		},
		Refs: source.RefSpec{
			Enabled:   src.Refs.Enabled,
			Col:       src.Refs.Col,
			Separator: src.Refs.Separator,
		},
		Taxon: source.TaxonSpec{
			Fixed:   src.Taxon.Fixed,
			PerRow:  src.Taxon.PerRow,
			ColA:    src.Taxon.ColA,
			ColB:    src.Taxon.ColB,
			Mapping: src.Taxon.Mapping,
		},
	}
	settings.ExtraEdgeAttrs = toColumnSpecs(src.ExtraEdgeAttrs)
	settings.ExtraNodeAttrsA = toColumnSpecs(src.ExtraNodeAttrsA)
	settings.ExtraNodeAttrsB = toColumnSpecs(src.ExtraNodeAttrsB)
	return settings
}

func toColumnSpecs(cols map[string]config.Column) map[string]source.ColumnSpec {
	if len(cols) == 0 {
		return nil
	}
	specs := make(map[string]source.ColumnSpec, len(cols))
	for name, col := range cols {
		specs[name] = source.ColumnSpec{Col: col.Col, Separator: col.Separator}
	}
	return specs
}
