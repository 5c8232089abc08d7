// Package listings loads the third-party service listings the gateway meters
// access to. The registry is read once at startup from a YAML file; per-call
// prices are declared in ledger units and converted to wei up front.
package listings

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"deposit-bridge-go/internal/ledger"
)

// Listing describes one metered third-party service.
type Listing struct {
	Id       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Price    string `yaml:"price" json:"price"` // ledger units per call

	// PriceWei is derived at load time; it never appears in the file.
	PriceWei *big.Int `yaml:"-" json:"-"`
}

type listingsFile struct {
	Services []Listing `yaml:"services"`
}

// Registry is an immutable, id-indexed set of listings.
type Registry struct {
	byId  map[string]Listing
	order []Listing
}

// Load reads and validates the listings file.
func Load(path string) (*Registry, error) {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var file listingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	return build(file.Services)
}

func build(services []Listing) (*Registry, error) {
	reg := &Registry{byId: make(map[string]Listing, len(services))}

	for i, svc := range services {
		if svc.Id == "" {
			return nil, fmt.Errorf("service at index %d missing id", i)
		}
		if _, dup := reg.byId[svc.Id]; dup {
			return nil, fmt.Errorf("duplicate service id %q", svc.Id)
		}

		price, err := decimal.NewFromString(svc.Price)
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid price %q: %w", svc.Id, svc.Price, err)
		}
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("service %s: price must be positive, got %s", svc.Id, svc.Price)
		}

		svc.PriceWei, err = ledger.ToWei(price)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.Id, err)
		}

		reg.byId[svc.Id] = svc
		reg.order = append(reg.order, svc)
	}

	return reg, nil
}

// Get returns the listing for id.
func (r *Registry) Get(id string) (Listing, bool) {
	svc, ok := r.byId[id]
	return svc, ok
}

// All returns the listings in file order.
func (r *Registry) All() []Listing {
	return r.order
}
