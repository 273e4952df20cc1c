// Package project persists stock catalogs and projects as JSON files.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/piwi3910/BarCut/internal/model"
)

var validate = validator.New()

// DefaultDir returns the directory BarCut keeps its files in, ~/.barcut.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".barcut")
}

// DefaultCatalogPath returns the default location of the stock catalog.
func DefaultCatalogPath() string {
	return filepath.Join(DefaultDir(), "catalog.json")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readCatalog(path string) (model.StockCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.StockCatalog{}, err
	}
	var cat model.StockCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return model.StockCatalog{}, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if err := validate.Struct(cat); err != nil {
		return model.StockCatalog{}, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	for i := range cat.Options {
		if cat.Options[i].ID == "" {
			cat.Options[i].ID = model.NewID()
		}
	}
	return cat, nil
}

// SaveCatalog writes the catalog to path, creating parent directories.
func SaveCatalog(path string, cat model.StockCatalog) error {
	return writeJSON(path, cat)
}

// LoadCatalog reads the catalog at path. A missing file yields the default
// catalog, which is saved to path.
func LoadCatalog(path string) (model.StockCatalog, error) {
	cat, err := readCatalog(path)
	if err != nil {
		if os.IsNotExist(err) {
			cat = model.DefaultCatalog()
			if saveErr := SaveCatalog(path, cat); saveErr != nil {
				return cat, saveErr
			}
			return cat, nil
		}
		return model.StockCatalog{}, err
	}
	return cat, nil
}

// LoadOrCreateCatalog loads the catalog from the default path.
func LoadOrCreateCatalog() (model.StockCatalog, string, error) {
	path := DefaultCatalogPath()
	cat, err := LoadCatalog(path)
	return cat, path, err
}

// ImportCatalog merges the options of the catalog at path into existing.
// Options whose ID is already present are skipped.
func ImportCatalog(path string, existing model.StockCatalog) (model.StockCatalog, error) {
	imported, err := readCatalog(path)
	if err != nil {
		return existing, err
	}

	merged := existing.Clone()
	ids := make(map[string]bool, len(merged.Options))
	for _, o := range merged.Options {
		ids[o.ID] = true
	}
	for _, o := range imported.Options {
		if ids[o.ID] {
			continue
		}
		merged.Options = append(merged.Options, o)
		ids[o.ID] = true
	}
	return merged, nil
}
