// Package catalog loads the ordered module catalog from YAML.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"learner-progress-service/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Parse decodes and validates a catalog document.
func Parse(data []byte) (domain.Catalog, error) {
	var c domain.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return domain.Catalog{}, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return domain.Catalog{}, err
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() domain.Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// FileLoader reads the catalog from a YAML file on every load. An empty
// path serves the built-in catalog.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) LoadCatalog(_ context.Context) (domain.Catalog, error) {
	if l.path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("catalog %s: %w", l.path, err)
	}
	slog.Info("catalog loaded", "path", l.path, "modules", len(c.Modules))
	return c, nil
}
