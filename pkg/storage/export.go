package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// NetworkExport is the on-disk JSON representation of a full network.
// Molecules and interactions are sorted by ID so exports of the same
// network are byte-identical, which keeps them diffable.
type NetworkExport struct {
	FormatVersion int            `json:"format_version"`
	Name          string         `json:"name,omitempty"`
	Molecules     []*Molecule    `json:"molecules"`
	Interactions  []*Interaction `json:"interactions"`
}

const exportFormatVersion = 1

// SaveNetwork writes the entire contents of the engine to a JSON file.
//
// Example:
//
//	if err := storage.SaveNetwork(engine, "network", "./out/network.json"); err != nil {
//		log.Fatal(err)
//	}
func SaveNetwork(engine Engine, name, path string) error {
	mols, err := engine.AllMolecules()
	if err != nil {
		return fmt.Errorf("exporting molecules: %w", err)
	}
	ias, err := engine.AllInteractions()
	if err != nil {
		return fmt.Errorf("exporting interactions: %w", err)
	}

	sort.Slice(mols, func(i, j int) bool { return mols[i].ID < mols[j].ID })
	sort.Slice(ias, func(i, j int) bool { return ias[i].ID < ias[j].ID })

	export := NetworkExport{
		FormatVersion: exportFormatVersion,
		Name:          name,
		Molecules:     mols,
		Interactions:  ias,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing network export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing network export: %w", err)
	}
	return nil
}

// LoadNetwork reads a JSON export file into the engine. Molecules are
// created before interactions so endpoint validation passes. The engine
// should be empty; existing IDs cause ErrAlreadyExists.
func LoadNetwork(engine Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading network export: %w", err)
	}

	var export NetworkExport
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parsing network export: %w", err)
	}
	if export.FormatVersion > exportFormatVersion {
		return fmt.Errorf("%w: unsupported export format version %d", ErrInvalidData, export.FormatVersion)
	}

	if err := engine.BulkCreateMolecules(export.Molecules); err != nil {
		return fmt.Errorf("loading molecules: %w", err)
	}
	if err := engine.BulkCreateInteractions(export.Interactions); err != nil {
		return fmt.Errorf("loading interactions: %w", err)
	}
	return nil
}

// CopyNetwork copies every molecule and interaction from src into dst.
// Used to persist an in-memory build into a BadgerEngine.
func CopyNetwork(dst, src Engine) error {
	mols, err := src.AllMolecules()
	if err != nil {
		return fmt.Errorf("reading source molecules: %w", err)
	}
	if err := dst.BulkCreateMolecules(mols); err != nil {
		return fmt.Errorf("copying molecules: %w", err)
	}
	ias, err := src.AllInteractions()
	if err != nil {
		return fmt.Errorf("reading source interactions: %w", err)
	}
	if err := dst.BulkCreateInteractions(ias); err != nil {
		return fmt.Errorf("copying interactions: %w", err)
	}
	return nil
}
