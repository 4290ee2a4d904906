package main

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"goflare.io/creamery/models"
)

//go:embed products.yaml
var defaultProducts []byte

type seedProduct struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Price       float64        `yaml:"price"`
	Category    string         `yaml:"category"`
	InStock     bool           `yaml:"in_stock"`
	Stock       int            `yaml:"stock"`
	ImageURL    string         `yaml:"image_url"`
	Attributes  map[string]any `yaml:"attributes"`
}

// loadSeedProducts reads products from path, or the bundled list when path is empty.
func loadSeedProducts(path string) ([]models.Product, error) {
	data := defaultProducts
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
	}

	var seeds []seedProduct
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	products := make([]models.Product, 0, len(seeds))
	for _, s := range seeds {
		products = append(products, models.Product{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Price:       s.Price,
			Category:    s.Category,
			ImageURL:    s.ImageURL,
			InStock:     s.InStock,
			Stock:       s.Stock,
			Attributes:  s.Attributes,
		})
	}
	return products, nil
}
