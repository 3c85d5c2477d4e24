// Package seed loads catalog fixtures into a store through the service layer.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seagull-retail/api/internal/services"
)

//go:embed default.yaml
var defaultFixture []byte

// Fixture is the YAML document shape accepted by Load.
type Fixture struct {
	Items   []ItemFixture   `yaml:"items"`
	Bundles []BundleFixture `yaml:"bundles"`
	Carts   []CartFixture   `yaml:"carts"`
}

// ItemFixture describes one catalog item. Prices are minor units.
type ItemFixture struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Category  string  `yaml:"category"`
	MSRP      int64   `yaml:"msrp"`
	SalePrice int64   `yaml:"sale_price"`
	Rating    float64 `yaml:"rating"`
	Stock     int     `yaml:"stock"`
	Bundle    bool    `yaml:"bundle"`
	OnSale    bool    `yaml:"on_sale"`
}

// BundleFixture lists the components packaged in a bundle item.
type BundleFixture struct {
	ID         string   `yaml:"id"`
	Components []string `yaml:"components"`
}

// CartFixture creates an empty named cart.
type CartFixture struct {
	Name string `yaml:"name"`
}

// Result reports what Apply wrote.
type Result struct {
	ItemsCreated int
	ItemsSkipped int
	Components   int
	CartIDs      []string
}

// Default returns the built-in fixture.
func Default() (Fixture, error) {
	return Decode(bytes.NewReader(defaultFixture))
}

// LoadFile reads a fixture from path. An empty path yields the built-in fixture.
func LoadFile(path string) (Fixture, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML fixture and rejects unknown fields.
func Decode(r io.Reader) (Fixture, error) {
	var fixture Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fixture); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixture{}, nil
		}
		return Fixture{}, fmt.Errorf("seed: decode fixture: %w", err)
	}
	return fixture, nil
}

// Apply writes the fixture through the catalog and cart services. Items that already exist
// are skipped. Carts are only created when the run created at least one item, so reapplying
// a fixture to a persistent store does not multiply carts.
func Apply(ctx context.Context, fixture Fixture, catalog services.CatalogService, carts services.CartService) (Result, error) {
	if catalog == nil || carts == nil {
		return Result{}, errors.New("seed: catalog and cart services are required")
	}

	var result Result
	for _, item := range fixture.Items {
		_, err := catalog.AddItem(ctx, services.AddItemCommand{
			ID:         item.ID,
			Name:       item.Name,
			CategoryID: item.Category,
			MSRP:       item.MSRP,
			SalePrice:  item.SalePrice,
			Rating:     item.Rating,
			Stock:      item.Stock,
			IsBundle:   item.Bundle,
			OnSale:     item.OnSale,
		})
		switch {
		case err == nil:
			result.ItemsCreated++
		case errors.Is(err, services.ErrAlreadyExists):
			result.ItemsSkipped++
		default:
			return result, fmt.Errorf("seed: item %s: %w", item.ID, err)
		}
	}

	for _, bundle := range fixture.Bundles {
		for _, componentID := range bundle.Components {
			if err := catalog.AddBundleComponent(ctx, bundle.ID, componentID); err != nil {
				return result, fmt.Errorf("seed: bundle %s component %s: %w", bundle.ID, componentID, err)
			}
			result.Components++
		}
	}

	if result.ItemsCreated == 0 {
		return result, nil
	}
	for _, cart := range fixture.Carts {
		created, err := carts.CreateCart(ctx, services.CreateCartCommand{Name: cart.Name})
		if err != nil {
			return result, fmt.Errorf("seed: cart %q: %w", cart.Name, err)
		}
		result.CartIDs = append(result.CartIDs, created.ID)
	}
	return result, nil
}
