package tools

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// Catalog is the YAML document used to seed a fresh tool crib.
type Catalog struct {
	Tools []CatalogTool `yaml:"tools"`
}

// CatalogTool is one seeded tool line.
type CatalogTool struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Location    string `yaml:"location"`
	ImageURL    string `yaml:"image_url"`
	Quantity    int    `yaml:"quantity"`
}

// SeedResult reports what a seed run changed.
type SeedResult struct {
	Created int
	Skipped int
}

// LoadCatalog parses and validates a catalog document. Unknown keys are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		if err == io.EOF {
			return &catalog, nil
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Tools))
	for i, tool := range catalog.Tools {
		name := strings.ToLower(strings.TrimSpace(tool.Name))
		if name == "" {
			return nil, fmt.Errorf("catalog tool %d: name is required", i)
		}
		if tool.Quantity < 0 {
			return nil, fmt.Errorf("catalog tool %q: quantity cannot be negative", tool.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("catalog tool %q listed twice", tool.Name)
		}
		seen[name] = struct{}{}
	}
	return &catalog, nil
}

// Seed inserts catalog tools that do not exist yet, matched by name.
// Existing rows are left untouched so stock already issued is never reset.
func Seed(ctx context.Context, repo *Repository, catalog *Catalog) (SeedResult, error) {
	var result SeedResult
	if catalog == nil {
		return result, nil
	}
	for _, entry := range catalog.Tools {
		existing, err := repo.FindByName(ctx, entry.Name)
		if err != nil {
			return result, fmt.Errorf("lookup %q: %w", entry.Name, err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}
		tool := &models.Tool{
			Name:         strings.TrimSpace(entry.Name),
			Description:  strings.TrimSpace(entry.Description),
			Category:     optional(entry.Category),
			Location:     optional(entry.Location),
			ImageURL:     optional(entry.ImageURL),
			TotalQty:     entry.Quantity,
			AvailableQty: entry.Quantity,
			Status:       enums.ToolStatusActive,
		}
		if err := repo.Create(ctx, tool); err != nil {
			return result, fmt.Errorf("insert %q: %w", entry.Name, err)
		}
		result.Created++
	}
	return result, nil
}

func optional(value string) *string {
	return trimmed(&value)
}
