package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CreditPackage is a purchasable bundle. Prices are in the smallest currency unit.
type CreditPackage struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Amount  int64  `yaml:"amount" json:"amount"`
	Credits int64  `yaml:"credits" json:"credits"`
}

// CreditCatalog is the server-side price list; clients only ever name a package.
type CreditCatalog struct {
	byID map[string]CreditPackage
}

func DefaultCreditPackages() []CreditPackage {
	return []CreditPackage{
		{ID: "starter", Name: "Starter", Amount: 9900, Credits: 100},
		{ID: "standard", Name: "Standard", Amount: 29900, Credits: 330},
		{ID: "pro", Name: "Pro", Amount: 89000, Credits: 1100},
	}
}

func NewCreditCatalog(pkgs []CreditPackage) (*CreditCatalog, error) {
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("credit catalog is empty")
	}
	byID := make(map[string]CreditPackage, len(pkgs))
	for _, p := range pkgs {
		p.ID = strings.TrimSpace(p.ID)
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("credit package without id")
		case p.Amount <= 0 || p.Credits <= 0:
			return nil, fmt.Errorf("credit package %q: amount and credits must be positive", p.ID)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("credit package %q defined twice", p.ID)
		}
		byID[p.ID] = p
	}
	return &CreditCatalog{byID: byID}, nil
}

type catalogFile struct {
	Packages []CreditPackage `yaml:"packages"`
}

// LoadCreditCatalog reads a YAML catalog, or returns the defaults when path is empty.
func LoadCreditCatalog(path string) (*CreditCatalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewCreditCatalog(DefaultCreditPackages())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credit catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse credit catalog %s: %w", path, err)
	}
	return NewCreditCatalog(f.Packages)
}

func (c *CreditCatalog) Lookup(id string) (CreditPackage, bool) {
	if c == nil {
		return CreditPackage{}, false
	}
	p, ok := c.byID[strings.TrimSpace(id)]
	return p, ok
}

// List returns packages ordered by price.
func (c *CreditCatalog) List() []CreditPackage {
	if c == nil {
		return nil
	}
	out := make([]CreditPackage, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount < out[j].Amount
		}
		return out[i].ID < out[j].ID
	})
	return out
}
