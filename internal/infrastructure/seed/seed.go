// Package seed loads customers, locations and SKUs from a YAML file into a store.
// Those records are owned by other services; the file lets a standalone
// deployment or a test environment boot with a usable catalog.
package seed

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rental-platform/rental-service/internal/domain"
)

// Sink receives the parsed records
type Sink interface {
	PutReferenceData(ctx context.Context, data *domain.ReferenceData) error
}

// File is the YAML layout
type File struct {
	Locations []Location `yaml:"locations" validate:"dive"`
	Customers []Customer `yaml:"customers" validate:"dive"`
	SKUs      []SKU      `yaml:"skus" validate:"dive"`
}

type Location struct {
	ID       string `yaml:"id" validate:"required"`
	Code     string `yaml:"code" validate:"required,max=10"`
	Name     string `yaml:"name" validate:"required"`
	Inactive bool   `yaml:"inactive"`
}

type Customer struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Inactive    bool   `yaml:"inactive"`
	Blacklisted bool   `yaml:"blacklisted"`
}

type SKU struct {
	ID               string `yaml:"id" validate:"required"`
	SKUCode          string `yaml:"skuCode" validate:"required"`
	Name             string `yaml:"name" validate:"required"`
	ItemMasterID     string `yaml:"itemMasterId"`
	Inactive         bool   `yaml:"inactive"`
	Saleable         bool   `yaml:"saleable"`
	Rentable         bool   `yaml:"rentable"`
	MinRentalDays    int    `yaml:"minRentalDays" validate:"gte=0"`
	MaxRentalDays    int    `yaml:"maxRentalDays" validate:"gte=0"`
	SalePrice        string `yaml:"salePrice"`
	RentalRatePerDay string `yaml:"rentalRatePerDay"`
	SecurityDeposit  string `yaml:"securityDeposit"`
	TracksUnits      bool   `yaml:"tracksUnits"`
}

var validate = validator.New()

// Load parses and validates a reference data document. Unknown keys are rejected.
func Load(r io.Reader) (*domain.ReferenceData, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if stderrors.Is(err, io.EOF) {
			return &domain.ReferenceData{}, nil
		}
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid reference data: %w", err)
	}
	return file.toDomain()
}

// LoadFile reads path and applies it to sink
func LoadFile(ctx context.Context, path string, sink Sink) (*domain.ReferenceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference data: %w", err)
	}
	defer f.Close()

	data, err := Load(f)
	if err != nil {
		return nil, err
	}
	if err := sink.PutReferenceData(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *File) toDomain() (*domain.ReferenceData, error) {
	data := &domain.ReferenceData{
		Customers: make([]domain.CustomerInfo, 0, len(f.Customers)),
		Locations: make([]domain.LocationInfo, 0, len(f.Locations)),
		SKUs:      make([]domain.SKUInfo, 0, len(f.SKUs)),
	}

	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		key := kind + "/" + id
		if seen[key] {
			return fmt.Errorf("duplicate %s id %q", kind, id)
		}
		seen[key] = true
		return nil
	}

	for _, l := range f.Locations {
		if err := unique("location", l.ID); err != nil {
			return nil, err
		}
		data.Locations = append(data.Locations, domain.LocationInfo{
			ID: l.ID, Code: l.Code, Name: l.Name, IsActive: !l.Inactive,
		})
	}
	for _, c := range f.Customers {
		if err := unique("customer", c.ID); err != nil {
			return nil, err
		}
		data.Customers = append(data.Customers, domain.CustomerInfo{
			ID: c.ID, Name: c.Name, IsActive: !c.Inactive, IsBlacklisted: c.Blacklisted,
		})
	}
	for _, s := range f.SKUs {
		if err := unique("sku", s.ID); err != nil {
			return nil, err
		}
		if s.MaxRentalDays > 0 && s.MaxRentalDays < s.MinRentalDays {
			return nil, fmt.Errorf("sku %s: maxRentalDays below minRentalDays", s.ID)
		}
		sku := domain.SKUInfo{
			ID:            s.ID,
			SKUCode:       s.SKUCode,
			Name:          s.Name,
			ItemMasterID:  s.ItemMasterID,
			IsActive:      !s.Inactive,
			IsSaleable:    s.Saleable,
			IsRentable:    s.Rentable,
			MinRentalDays: s.MinRentalDays,
			MaxRentalDays: s.MaxRentalDays,
			TracksUnits:   s.TracksUnits,
		}
		var err error
		if sku.SalePrice, err = price(s.ID, "salePrice", s.SalePrice); err != nil {
			return nil, err
		}
		if sku.RentalRatePerDay, err = price(s.ID, "rentalRatePerDay", s.RentalRatePerDay); err != nil {
			return nil, err
		}
		if sku.SecurityDeposit, err = price(s.ID, "securityDeposit", s.SecurityDeposit); err != nil {
			return nil, err
		}
		data.SKUs = append(data.SKUs, sku)
	}
	return data, nil
}

// price parses an optional non-negative amount
func price(skuID, field, raw string) (domain.Money, error) {
	if raw == "" {
		return domain.ZeroMoney(), nil
	}
	m, err := domain.ParseMoney(raw)
	if err != nil {
		return domain.Money{}, fmt.Errorf("sku %s: %s: %w", skuID, field, err)
	}
	if m.IsNegative() {
		return domain.Money{}, fmt.Errorf("sku %s: %s must not be negative", skuID, field)
	}
	return m, nil
}
