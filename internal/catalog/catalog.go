// Package catalog loads the immutable product and counterparty reference data
// negotiations are built from.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ProductComponent describes one bill-of-materials entry of a product
type ProductComponent struct {
	Type        string `yaml:"type" json:"type"`
	Name        string `yaml:"name" json:"name"`
	Composition string `yaml:"composition,omitempty" json:"composition,omitempty"`
	Supplier    string `yaml:"supplier,omitempty" json:"supplier,omitempty"`
	Position    string `yaml:"position,omitempty" json:"position,omitempty"`
	Color       string `yaml:"color,omitempty" json:"color,omitempty"`
	Material    string `yaml:"material,omitempty" json:"material,omitempty"`
	Weight      string `yaml:"weight,omitempty" json:"weight,omitempty"`
	Function    string `yaml:"function,omitempty" json:"function,omitempty"`
}

// Product is one sourceable catalog item
type Product struct {
	Code         string             `yaml:"code" json:"code"`
	Name         string             `yaml:"name" json:"name"`
	Description  string             `yaml:"description" json:"description"`
	TargetFOB    float64            `yaml:"target_fob" json:"target_fob"`
	CategoryPath string             `yaml:"category_path" json:"category_path"`
	Components   []ProductComponent `yaml:"components" json:"components"`
}

// CounterpartyProfile is the fixed profile of one negotiating counterparty.
// PriceMultiplier is private simulation state: it must never reach the buyer,
// the observer, or any prompt other than the counterparty's own. It is
// excluded from JSON so no event or API payload can carry it.
type CounterpartyProfile struct {
	ID              string  `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	QualityRating   float64 `yaml:"quality_rating" json:"quality_rating"`
	CostTier        string  `yaml:"cost_tier" json:"cost_tier"`
	LeadTimeDays    int     `yaml:"lead_time_days" json:"lead_time_days"`
	PaymentTerms    string  `yaml:"payment_terms" json:"payment_terms"`
	PriceMultiplier float64 `yaml:"price_multiplier" json:"-"`
}

// NotFoundError reports a lookup of an unknown catalog record
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type productsFile struct {
	SchemaVersion string    `yaml:"schema_version"`
	Products      []Product `yaml:"products"`
}

type counterpartiesFile struct {
	SchemaVersion  string                `yaml:"schema_version"`
	Counterparties []CounterpartyProfile `yaml:"counterparties"`
}

// Catalog holds the loaded reference data. All reads are pure and stable:
// the underlying records never change after Load.
type Catalog struct {
	products       []Product
	counterparties []CounterpartyProfile
	byID           map[string]CounterpartyProfile
}

// Load reads products.yaml and counterparties.yaml from dir and validates
// their schema versions.
func Load(dir string) (*Catalog, error) {
	var pf productsFile
	if err := readYAML(filepath.Join(dir, "products.yaml"), &pf); err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if err := checkSchemaVersion(pf.SchemaVersion); err != nil {
		return nil, fmt.Errorf("products.yaml: %w", err)
	}
	if len(pf.Products) == 0 {
		return nil, fmt.Errorf("products.yaml contains no products")
	}

	var cf counterpartiesFile
	if err := readYAML(filepath.Join(dir, "counterparties.yaml"), &cf); err != nil {
		return nil, fmt.Errorf("failed to load counterparties: %w", err)
	}
	if err := checkSchemaVersion(cf.SchemaVersion); err != nil {
		return nil, fmt.Errorf("counterparties.yaml: %w", err)
	}
	if len(cf.Counterparties) == 0 {
		return nil, fmt.Errorf("counterparties.yaml contains no counterparties")
	}

	cat, err := New(pf.Products, cf.Counterparties)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("products", len(pf.Products)).
		Int("counterparties", len(cf.Counterparties)).
		Str("dir", dir).
		Msg("Catalog loaded")

	return cat, nil
}

// New builds a catalog from already-loaded records, applying the same record
// validation Load applies after parsing
func New(products []Product, counterparties []CounterpartyProfile) (*Catalog, error) {
	byID := make(map[string]CounterpartyProfile, len(counterparties))
	for _, cp := range counterparties {
		if cp.ID == "" {
			return nil, fmt.Errorf("counterparty %q has no id", cp.Name)
		}
		if _, dup := byID[cp.ID]; dup {
			return nil, fmt.Errorf("duplicate counterparty id %q", cp.ID)
		}
		if cp.PriceMultiplier <= 0 {
			return nil, fmt.Errorf("counterparty %q has invalid price multiplier", cp.ID)
		}
		byID[cp.ID] = cp
	}

	return &Catalog{
		products:       products,
		counterparties: counterparties,
		byID:           byID,
	}, nil
}

func readYAML(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadProducts returns all catalog products. Repeated calls return equal
// results; the returned slice is a copy.
func (c *Catalog) LoadProducts() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Counterparty returns the profile for the given id
func (c *Catalog) Counterparty(id string) (CounterpartyProfile, error) {
	cp, ok := c.byID[id]
	if !ok {
		return CounterpartyProfile{}, &NotFoundError{Kind: "counterparty", ID: id}
	}
	return cp, nil
}

// Counterparties returns all counterparty profiles in file order
func (c *Catalog) Counterparties() []CounterpartyProfile {
	out := make([]CounterpartyProfile, len(c.counterparties))
	copy(out, c.counterparties)
	return out
}

// ProductCodes returns the set of known product codes, for request validation
func (c *Catalog) ProductCodes() map[string]bool {
	codes := make(map[string]bool, len(c.products))
	for _, p := range c.products {
		codes[p.Code] = true
	}
	return codes
}

// Product returns the product with the given code
func (c *Catalog) Product(code string) (Product, error) {
	for _, p := range c.products {
		if p.Code == code {
			return p, nil
		}
	}
	return Product{}, &NotFoundError{Kind: "product", ID: code}
}
